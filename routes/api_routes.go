package routes

import (
	"farshore.ai/comfy-serverless/handler"
	"github.com/gin-gonic/gin"
)

func RegisterAPIRoutes(r *gin.Engine, h *handler.APIHandler) {
	r.POST("/run", h.RunHandler)

	// ✅ 辅助接口
	r.GET("/health", h.HealthHandler)
	r.GET("/info", h.InfoHandler)
}
