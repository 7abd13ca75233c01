package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"farshore.ai/comfy-serverless/model"
	"farshore.ai/comfy-serverless/utils"
	"github.com/google/uuid"
)

// Orchestrator 按顺序驱动一个任务走完全流程：
// 建暂存目录 -> 解析输入 -> 选模板加载 -> patch -> 连事件流 -> 提交 -> 等终态 -> 解析产物 -> 交付。
// 任何一步失败都短路剩余步骤，统一转成 {error: ...} 响应；暂存目录无条件清理。
type Orchestrator struct {
	cfg          *model.Config
	comfy        *ComfyClient
	configurator WorkflowConfigurator
	dispatcher   *OutputDispatcher
}

// NewOrchestrator 创建任务编排器
func NewOrchestrator(cfg *model.Config, comfy *ComfyClient, configurator WorkflowConfigurator, dispatcher *OutputDispatcher) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		comfy:        comfy,
		configurator: configurator,
		dispatcher:   dispatcher,
	}
}

// progressLogger 把引擎进度事件打到日志
type progressLogger struct{}

func (progressLogger) OnNodeStart(nodeID string) {
	LogOrchestrator("[Executing] node: %s", nodeID)
}

func (progressLogger) OnProgress(nodeID string, value, max int) {
	LogOrchestrator("[Progress] node: %s %d/%d", nodeID, value, max)
}

// RunJob 处理一个任务，永远返回一个完整的响应对象，不向上抛错
func (o *Orchestrator) RunJob(ctx context.Context, req *model.JobRequest) *model.JobResponse {
	taskID := fmt.Sprintf("task_%s", uuid.NewString())
	stagingDir := filepath.Join(o.cfg.TempDir, taskID)

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return o.fail(fmt.Errorf("create staging dir: %w", err))
	}

	// 暂存目录在所有退出路径上清理，删除失败只记日志不影响响应
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			LogOrchestrator("⚠️ 清理暂存目录失败: %v", err)
			return
		}
		LogOrchestrator("已清理暂存目录: %s", stagingDir)
	}()

	// Step 1: 解析输入
	LogOrchestrator("Step 1: 解析输入...")
	media, err := o.configurator.ResolveInputs(req, stagingDir)
	if err != nil {
		return o.fail(err)
	}

	// Step 2: 选择并加载 workflow 模板
	LogOrchestrator("Step 2: 加载 workflow...")
	templatePath := filepath.Join(o.cfg.Model.WorkflowDir, o.configurator.SelectTemplate(req))
	graph, err := o.comfy.LoadWorkflow(templatePath)
	if err != nil {
		return o.fail(err)
	}

	// Step 3: 写入任务参数
	LogOrchestrator("Step 3: 配置 workflow...")
	warnings, err := o.configurator.Patch(ctx, graph, req, media)
	if err != nil {
		return o.fail(err)
	}
	for _, w := range warnings {
		LogOrchestrator("⚠️ 模板漂移: %s", w)
	}

	// Step 4: 建立事件流连接
	LogOrchestrator("Step 4: 连接 ComfyUI...")
	clientID := uuid.NewString()
	ws := o.comfy.NewWsClient(clientID)
	if err := ws.Connect(); err != nil {
		return o.fail(fmt.Errorf("%w: websocket: %v", ErrExecutionFailed, err))
	}
	ws.Start()
	defer ws.Stop()

	// Step 5: 提交任务
	LogOrchestrator("Step 5: 提交任务...")
	promptID, err := o.comfy.QueuePrompt(graph, clientID)
	if err != nil {
		return o.fail(err)
	}

	// Step 6: 等待执行终态，超时上限从配置下发
	LogOrchestrator("Step 6: 等待执行...")
	execCtx := ctx
	if o.cfg.ComfyUI.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.ComfyUI.ExecTimeout)*time.Second)
		defer cancel()
	}
	ok, err := o.comfy.AwaitCompletion(execCtx, ws, promptID, progressLogger{})
	if !ok {
		if err == nil {
			err = ErrExecutionFailed
		}
		return o.fail(err)
	}

	// Step 7: 解析产物
	LogOrchestrator("Step 7: 解析输出文件...")
	artifacts, err := o.comfy.ResolveArtifacts(promptID)
	if err != nil {
		return o.fail(err)
	}
	if artifacts.Empty() {
		return o.fail(ErrNoOutputFile)
	}

	// Step 8: 交付
	LogOrchestrator("Step 8: 处理输出...")
	resp, err := o.dispatcher.Dispatch(ctx, artifacts, req, stagingDir)
	if err != nil {
		return o.fail(err)
	}

	LogOrchestrator("✅ 任务完成")
	return resp
}

// fail 统一失败出口：记日志、报警、转换为 {error} 响应
func (o *Orchestrator) fail(err error) *model.JobResponse {
	LogOrchestrator(ColorRed+"❌ 任务失败: %v", err)
	utils.Warn("job_failed", o.cfg.Model.Name, fmt.Sprintf("任务失败: %v", err))
	return &model.JobResponse{Error: err.Error()}
}
