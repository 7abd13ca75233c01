package handler

import (
	"encoding/json"
	"net/http"

	"farshore.ai/comfy-serverless/core"
	"farshore.ai/comfy-serverless/model"
	"github.com/gin-gonic/gin"
)

// =======================
// 💡 APIHandler 主体
// =======================
type APIHandler struct {
	Orchestrator *core.Orchestrator
	Comfy        *core.ComfyClient
	Cfg          *model.Config
	S3Enabled    bool
}

// 创建实例
func NewAPIHandler(orchestrator *core.Orchestrator, comfy *core.ComfyClient, cfg *model.Config, s3Enabled bool) *APIHandler {
	return &APIHandler{
		Orchestrator: orchestrator,
		Comfy:        comfy,
		Cfg:          cfg,
		S3Enabled:    s3Enabled,
	}
}

// runRequest RunPod 风格的请求信封
type runRequest struct {
	Input model.JobRequest `json:"input"`
}

// =======================
// 🚀 生成任务接口
// =======================
// 同步执行：请求在任务完成或失败后才返回。
// 无论哪一步失败，响应都是统一的 {error: ...}，不区分 HTTP 状态。
func (h *APIHandler) RunHandler(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.JobResponse{Error: "invalid request body"})
		return
	}

	h.logRequest(&req.Input)

	resp := h.Orchestrator.RunJob(c.Request.Context(), &req.Input)
	c.JSON(http.StatusOK, resp)
}

// logRequest 打印收到的任务，Base64 字段截断
func (h *APIHandler) logRequest(req *model.JobRequest) {
	clone := *req
	clone.ImageBase64 = core.TruncateBase64ForLog(clone.ImageBase64)
	clone.VideoBase64 = core.TruncateBase64ForLog(clone.VideoBase64)
	clone.WavBase64 = core.TruncateBase64ForLog(clone.WavBase64)

	data, _ := json.Marshal(clone)
	core.LogOrchestrator("收到任务: %s", string(data))
}

// =======================
// 🩺 健康检查接口
// =======================
func (h *APIHandler) HealthHandler(c *gin.Context) {
	queue, err := h.Comfy.QueueRemaining()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "engine unreachable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"queue_remaining": queue,
	})
}

// =======================
// 📋 服务信息接口
// =======================
func (h *APIHandler) InfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"model":       h.Cfg.Model.Name,
		"comfyui":     h.Comfy.BaseURL(),
		"r2_storage":  h.S3Enabled,
		"volume_path": h.Cfg.Volume.Path,
	})
}
