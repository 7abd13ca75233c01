package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"farshore.ai/comfy-serverless/config"
	"farshore.ai/comfy-serverless/model"
)

// ComfyClient 封装与 ComfyUI 引擎的 HTTP 交互：
// 提交任务、查询 history、解析产物路径、启动就绪探测。
// 引擎本身是黑盒，这里只认它的 HTTP/WS 协议。
type ComfyClient struct {
	baseURL    string
	wsHost     string
	useSSL     bool
	inputDir   string
	outputDir  string
	httpClient *http.Client
}

// NewComfyClient 创建引擎客户端
func NewComfyClient(cfg model.ComfyUIConfig) *ComfyClient {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	host := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c := &ComfyClient{
		baseURL:    fmt.Sprintf("%s://%s", scheme, host),
		wsHost:     host,
		useSSL:     cfg.UseSSL,
		inputDir:   cfg.InputDir,
		outputDir:  cfg.OutputDir,
		httpClient: &http.Client{},
	}
	LogComfyClient("ComfyUI 客户端初始化: %s", c.baseURL)
	return c
}

// BaseURL 引擎 HTTP 地址
func (c *ComfyClient) BaseURL() string {
	return c.baseURL
}

// InputDir 引擎 input 根目录，媒体文件按文件名被引擎读取
func (c *ComfyClient) InputDir() string {
	return c.inputDir
}

// NewWsClient 创建对应该引擎的事件流客户端
func (c *ComfyClient) NewWsClient(clientID string) *WsClient {
	return NewWsClient(c.wsHost, clientID, c.useSSL)
}

// LoadWorkflow 从模板文件加载 workflow
func (c *ComfyClient) LoadWorkflow(path string) (model.WorkflowGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	var graph model.WorkflowGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	LogComfyClient("加载 workflow: %s (%d 个节点)", path, len(graph))
	return graph, nil
}

// promptCommitResponse 提交接口返回的结构
type promptCommitResponse struct {
	PromptID   string                 `json:"prompt_id"`
	NodeErrors map[string]interface{} `json:"node_errors,omitempty"`
	Number     int                    `json:"number,omitempty"`
}

// QueuePrompt 提交 workflow，返回引擎分配的 prompt_id。
// 引擎校验失败（4xx/5xx）时带回原始响应体便于排查，这一层不做重试。
func (c *ComfyClient) QueuePrompt(graph model.WorkflowGraph, clientID string) (string, error) {
	fullURL := fmt.Sprintf("%s/prompt", strings.TrimRight(c.baseURL, "/"))
	body := map[string]interface{}{
		"prompt":    graph,
		"client_id": clientID,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal prompt: %v", ErrSubmitFailed, err)
	}

	req, err := http.NewRequest("POST", fullURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrSubmitFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrSubmitFailed, resp.StatusCode, string(respBody))
	}

	var result promptCommitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrSubmitFailed, err)
	}
	if result.PromptID == "" {
		return "", fmt.Errorf("%w: empty prompt_id in response: %s", ErrSubmitFailed, string(respBody))
	}

	LogComfyClient("🚀 任务已提交, prompt_id: %s", result.PromptID)
	return result.PromptID, nil
}

// ============================== 事件流消息定义 =======================================

// 节点执行中。Node 为 null 且 prompt_id 匹配时表示整个任务执行结束。
type ExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// 进度消息
type ProgressData struct {
	Max      int    `json:"max"`
	Node     string `json:"node"`
	PromptID string `json:"prompt_id"`
	Value    int    `json:"value"`
}

// 系统/错误消息
type SystemData struct {
	Message string `json:"msg"`
}

// ProgressObserver 可选的进度回调
type ProgressObserver interface {
	OnNodeStart(nodeID string)
	OnProgress(nodeID string, value, max int)
}

// AwaitCompletion 消费事件流直到任务终态。
// 返回 true 表示执行成功；error 事件、流断开、ctx 超时都算执行失败。
// 不属于本任务的消息一律丢弃，同一引擎上并发任务靠这层过滤保证正确性。
func (c *ComfyClient) AwaitCompletion(ctx context.Context, ws *WsClient, promptID string, observer ProgressObserver) (bool, error) {
	LogComfyClient("等待任务完成: %s", promptID)

	for {
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %v", ErrExecutionFailed, ctx.Err())

		case msg, ok := <-ws.Messages():
			if !ok {
				return false, fmt.Errorf("%w: event stream closed", ErrExecutionFailed)
			}

			switch msg.Type {
			case "executing":
				var data ExecutingData
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					continue
				}
				if data.Node != nil {
					if data.PromptID == promptID && observer != nil {
						observer.OnNodeStart(*data.Node)
					}
					continue
				}
				if data.PromptID == promptID {
					LogComfyClient("✅ 任务执行完成: %s", promptID)
					return true, nil
				}

			case "progress":
				var data ProgressData
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					continue
				}
				if (data.PromptID == "" || data.PromptID == promptID) && observer != nil {
					observer.OnProgress(data.Node, data.Value, data.Max)
				}

			case "error", "execution_error":
				LogComfyClient(ColorRed+"❌ 引擎报告执行错误: %s", string(msg.Data))
				return false, fmt.Errorf("%w: engine reported error", ErrExecutionFailed)

			case WS_READ_ERROR, WS_CONNECTION_ERROR:
				var data SystemData
				_ = json.Unmarshal(msg.Data, &data)
				LogComfyClient(ColorRed+"❌ 事件流中断: %s", data.Message)
				return false, fmt.Errorf("%w: event stream disconnected: %s", ErrExecutionFailed, data.Message)

			default:
				// status / execution_cached / crystools.monitor 等与终态无关，忽略
			}
		}
	}
}

// ============================== history 解析 =======================================

// HistoryResponse GET /history/{prompt_id} 的响应
type HistoryResponse map[string]HistoryEntry

// HistoryEntry 单个任务的执行记录
type HistoryEntry struct {
	Outputs  map[string]NodeOutput `json:"outputs"`
	Status   json.RawMessage       `json:"status,omitempty"`
	Messages json.RawMessage       `json:"messages,omitempty"`
}

// NodeOutput 一个节点的产出，三类输出字段分别对应帧序列、静帧、视频容器
type NodeOutput struct {
	Gifs   []OutputItem `json:"gifs,omitempty"`
	Images []OutputItem `json:"images,omitempty"`
	Videos []OutputItem `json:"videos,omitempty"`
}

// OutputItem 单个产出文件的定位信息
type OutputItem struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
	Fullpath  string `json:"fullpath,omitempty"` // 部分节点直接给全路径
}

// GetHistory 查询任务的执行记录
func (c *ComfyClient) GetHistory(promptID string) (*HistoryEntry, error) {
	url := fmt.Sprintf("%s/history/%s", c.baseURL, promptID)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var history HistoryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, fmt.Errorf("history 中未找到 prompt_id: %s", promptID)
	}
	return &entry, nil
}

// ResolveArtifacts 从 history 解析所有产物的本地绝对路径。
// 路径优先取节点给的 fullpath，否则按 type 选根目录（output/input，默认 output）
// 再拼 subfolder 和 filename。没有任何可解析文件的节点不进结果。
func (c *ComfyClient) ResolveArtifacts(promptID string) (*model.ArtifactSet, error) {
	entry, err := c.GetHistory(promptID)
	if err != nil {
		return nil, err
	}

	if len(entry.Status) > 0 {
		LogComfyClient("执行状态: %s", string(entry.Status))
	}

	// 节点按 ID 的数值排序，首文件选取保持确定性（引擎的节点 ID 是十进制数）
	nodeIDs := make([]string, 0, len(entry.Outputs))
	for nodeID := range entry.Outputs {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Slice(nodeIDs, func(i, j int) bool {
		a, errA := strconv.Atoi(nodeIDs[i])
		b, errB := strconv.Atoi(nodeIDs[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return nodeIDs[i] < nodeIDs[j]
	})

	set := &model.ArtifactSet{}
	for _, nodeID := range nodeIDs {
		output := entry.Outputs[nodeID]
		var files []string
		for _, items := range [][]OutputItem{output.Gifs, output.Images, output.Videos} {
			for _, item := range items {
				path := c.resolveItemPath(item)
				if path == "" {
					continue
				}
				files = append(files, path)
			}
		}
		if len(files) > 0 {
			LogComfyClient("节点 %s: %d 个输出文件", nodeID, len(files))
			set.Nodes = append(set.Nodes, model.NodeArtifacts{NodeID: nodeID, Files: files})
		}
	}

	return set, nil
}

// resolveItemPath 推导单个产出文件的绝对路径
func (c *ComfyClient) resolveItemPath(item OutputItem) string {
	if item.Fullpath != "" {
		return item.Fullpath
	}
	if item.Filename == "" {
		return ""
	}

	base := c.outputDir
	if item.Type == "input" {
		base = c.inputDir
	}

	if item.Subfolder != "" {
		return filepath.Join(base, item.Subfolder, item.Filename)
	}
	return filepath.Join(base, item.Filename)
}

// ============================== 就绪与队列 =======================================

// WaitForServerReady 按 1 秒间隔轮询引擎根路径，直到应答或超时。
// 只在进程预热阶段调用，不在单个任务里用。
func (c *ComfyClient) WaitForServerReady(timeout time.Duration) error {
	LogComfyClient("等待 ComfyUI 启动...")

	deadline := time.Now().Add(timeout)
	attempt := 0
	for time.Now().Before(deadline) {
		attempt++
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(c.baseURL)
		if err == nil {
			resp.Body.Close()
			LogComfyClient("✅ ComfyUI 已就绪 (第 %d 次探测)", attempt)
			return nil
		}
		if attempt%10 == 1 {
			LogComfyClient("等待 ComfyUI... (%d)", attempt)
		}
		time.Sleep(config.ReadyPollInterval)
	}

	return fmt.Errorf("ComfyUI 在 %s 内未就绪", timeout)
}

// QueueRemaining 查询引擎当前队列深度
func (c *ComfyClient) QueueRemaining() (int, error) {
	url := fmt.Sprintf("%s/prompt", c.baseURL)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var data struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("parse queue info: %w", err)
	}
	return data.ExecInfo.QueueRemaining, nil
}
