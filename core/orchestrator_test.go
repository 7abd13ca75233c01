package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"farshore.ai/comfy-serverless/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEngine 伪 ComfyUI：HTTP 提交/history + WS 事件流，提交后立即发终态
type mockEngine struct {
	failSubmit  bool  // POST /prompt 返回 400
	sendError   bool  // 事件流发 error 事件
	emptyOutput bool  // history 里没有任何产物
	outputFile  string // history 指向的产物文件（绝对路径，用 fullpath 下发）
}

func (e *mockEngine) server(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Write([]byte(`{"exec_info":{"queue_remaining":0}}`))
			return
		}
		if e.failSubmit {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"type":"invalid_prompt"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"prompt_id": "p-1"})
	})

	mux.HandleFunc("/history/p-1", func(w http.ResponseWriter, r *http.Request) {
		outputs := map[string]interface{}{}
		if !e.emptyOutput {
			outputs["131"] = map[string]interface{}{
				"videos": []map[string]interface{}{
					{"filename": filepath.Base(e.outputFile), "fullpath": e.outputFile, "type": "output"},
				},
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"p-1": map[string]interface{}{"outputs": outputs},
		})
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if e.sendError {
			conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"error","data":{"msg":"boom"}}`))
		} else {
			conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"executing","data":{"node":"284","prompt_id":"p-1"}}`))
			conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"executing","data":{"node":null,"prompt_id":"p-1"}}`))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	return httptest.NewServer(mux)
}

// newTestOrchestrator 组装指向伪引擎的完整编排器
func newTestOrchestrator(t *testing.T, srv *httptest.Server) (*Orchestrator, *model.Config) {
	t.Helper()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	root := t.TempDir()
	engineInput := filepath.Join(root, "engine-input")
	engineOutput := filepath.Join(root, "engine-output")
	workflowDir := filepath.Join(root, "workflows")
	tempDir := filepath.Join(root, "tmp")
	volume := filepath.Join(root, "volume")
	for _, dir := range []string{engineInput, engineOutput, workflowDir, tempDir, volume} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	template := `{
		"284": {"inputs": {"image": ""}, "class_type": "LoadImage"},
		"125": {"inputs": {"audio": ""}, "class_type": "LoadAudio"},
		"241": {"inputs": {"positive_prompt": ""}, "class_type": "Text"},
		"245": {"inputs": {"value": 0}, "class_type": "Int"},
		"246": {"inputs": {"value": 0}, "class_type": "Int"},
		"270": {"inputs": {"value": 0}, "class_type": "Int"},
		"131": {"inputs": {"save_output": false, "filename_prefix": "InfiniteTalk"}, "class_type": "VHS_VideoCombine"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(workflowDir, "I2V_single.json"), []byte(template), 0o644))

	cfg := &model.Config{
		ComfyUI: model.ComfyUIConfig{
			Host:        host,
			Port:        port,
			InputDir:    engineInput,
			OutputDir:   engineOutput,
			ExecTimeout: 10,
		},
		Model: model.ModelConfig{
			Name:        "infinitetalk",
			WorkflowDir: workflowDir,
			ExamplesDir: filepath.Join(root, "no-examples"),
			FPS:         25,
		},
		Volume:  model.VolumeConfig{Path: volume},
		TempDir: tempDir,
	}

	comfy := NewComfyClient(cfg.ComfyUI)
	configurator := NewInfiniteTalkConfigurator(engineInput, cfg.Model.ExamplesDir, cfg.Model.FPS)
	configurator.Probe = func(context.Context, string) (float64, error) {
		return 0, errors.New("no ffprobe in tests")
	}
	dispatcher := NewOutputDispatcher(nil, cfg.Model.Name, volume)

	return NewOrchestrator(cfg, comfy, configurator, dispatcher), cfg
}

// assertStagingCleaned 任何退出路径之后暂存根目录都必须是空的
func assertStagingCleaned(t *testing.T, cfg *model.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging dir leaked")
}

func validJobRequest(t *testing.T) *model.JobRequest {
	t.Helper()
	dir := t.TempDir()
	return &model.JobRequest{
		InputType:   "image",
		PersonCount: "single",
		Prompt:      "hello",
		Width:       512,
		Height:      512,
		ImagePath:   writeTempFile(t, dir, "face.jpg", "jpeg"),
		WavPath:     writeTempFile(t, dir, "speech.wav", "wav"),
	}
}

// 端到端成功路径：默认交付方式是 Base64 内联
func TestRunJobSuccess(t *testing.T) {
	engine := &mockEngine{}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)
	engine.outputFile = filepath.Join(cfg.ComfyUI.OutputDir, "result.mp4")
	require.NoError(t, os.WriteFile(engine.outputFile, []byte("mp4-bytes"), 0o644))

	resp := orch.RunJob(context.Background(), validJobRequest(t))

	require.Empty(t, resp.Error)
	assert.Equal(t, "success", resp.Status)
	decoded, err := base64.StdEncoding.DecodeString(resp.Video)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(decoded))

	assertStagingCleaned(t, cfg)

	// 媒体文件确实拷到了引擎 input 目录
	assert.FileExists(t, filepath.Join(cfg.ComfyUI.InputDir, "face.jpg"))
}

func TestRunJobVolumeDelivery(t *testing.T) {
	engine := &mockEngine{}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)
	engine.outputFile = filepath.Join(cfg.ComfyUI.OutputDir, "result.mp4")
	require.NoError(t, os.WriteFile(engine.outputFile, []byte("mp4-bytes"), 0o644))

	req := validJobRequest(t)
	req.NetworkVolume = true
	resp := orch.RunJob(context.Background(), req)

	require.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.VideoPath)
	assert.FileExists(t, resp.VideoPath)
	assertStagingCleaned(t, cfg)
}

// 以下逐阶段注入失败，断言统一 {error} 响应且暂存目录被清理

func TestRunJobInputFailure(t *testing.T) {
	engine := &mockEngine{}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)

	req := validJobRequest(t)
	req.WavPath = ""
	resp := orch.RunJob(context.Background(), req)

	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Status)
	assertStagingCleaned(t, cfg)
}

func TestRunJobTemplateMissing(t *testing.T) {
	engine := &mockEngine{}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)
	require.NoError(t, os.Remove(filepath.Join(cfg.Model.WorkflowDir, "I2V_single.json")))

	resp := orch.RunJob(context.Background(), validJobRequest(t))

	assert.NotEmpty(t, resp.Error)
	assertStagingCleaned(t, cfg)
}

func TestRunJobSubmitFailure(t *testing.T) {
	engine := &mockEngine{failSubmit: true}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)

	resp := orch.RunJob(context.Background(), validJobRequest(t))

	assert.NotEmpty(t, resp.Error)
	assertStagingCleaned(t, cfg)
}

func TestRunJobExecutionFailure(t *testing.T) {
	engine := &mockEngine{sendError: true}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)

	resp := orch.RunJob(context.Background(), validJobRequest(t))

	assert.NotEmpty(t, resp.Error)
	assertStagingCleaned(t, cfg)
}

func TestRunJobNoOutput(t *testing.T) {
	engine := &mockEngine{emptyOutput: true}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)

	resp := orch.RunJob(context.Background(), validJobRequest(t))

	assert.NotEmpty(t, resp.Error)
	assertStagingCleaned(t, cfg)
}

func TestRunJobDispatchFailure(t *testing.T) {
	engine := &mockEngine{}
	srv := engine.server(t)
	defer srv.Close()

	orch, cfg := newTestOrchestrator(t, srv)
	engine.outputFile = filepath.Join(cfg.ComfyUI.OutputDir, "result.mp4")
	require.NoError(t, os.WriteFile(engine.outputFile, []byte("mp4-bytes"), 0o644))

	// 要求上传但没配置存储
	req := validJobRequest(t)
	req.UseR2Storage = true
	resp := orch.RunJob(context.Background(), req)

	assert.NotEmpty(t, resp.Error)
	assertStagingCleaned(t, cfg)
}
