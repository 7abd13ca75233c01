package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"farshore.ai/comfy-serverless/config"
	"farshore.ai/comfy-serverless/core"
	"farshore.ai/comfy-serverless/handler"
	"farshore.ai/comfy-serverless/routes"
	"farshore.ai/comfy-serverless/utils"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 1️⃣ 加载 .env（R2 凭据等敏感配置走环境变量）
	_ = godotenv.Load()

	// 2️⃣ 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	// 3️⃣ 初始化飞书报警
	if cfg.Feishu.WebHook != "" {
		utils.InitFeishuClient(cfg.Feishu.WebHook)
	}

	// 4️⃣ 初始化 S3 客户端（凭据不全则禁用上传交付）
	var s3client *core.S3Client
	if cfg.S3.Configured() {
		s3client, err = core.NewS3Client(cfg.S3)
		if err != nil {
			panic(err)
		}
		log.Println("✅ R2 存储已启用")
	} else {
		log.Println("⚠️ R2 存储未配置，上传交付不可用")
	}

	// 5️⃣ 等待 ComfyUI 就绪
	comfy := core.NewComfyClient(cfg.ComfyUI)
	startupTimeout := time.Duration(cfg.ComfyUI.StartupTimeout) * time.Second
	if err := comfy.WaitForServerReady(startupTimeout); err != nil {
		utils.Warn("engine_down", cfg.ComfyUI.Host, err.Error())
		panic(err)
	}

	// 6️⃣ 组装任务编排器
	configurator := core.NewInfiniteTalkConfigurator(
		cfg.ComfyUI.InputDir, cfg.Model.ExamplesDir, cfg.Model.FPS)
	dispatcher := core.NewOutputDispatcher(s3client, cfg.Model.Name, cfg.Volume.Path)
	orchestrator := core.NewOrchestrator(cfg, comfy, configurator, dispatcher)

	// 7️⃣ 设置路由并启动 HTTP 服务
	h := handler.NewAPIHandler(orchestrator, comfy, cfg, s3client != nil)
	r := gin.Default()
	routes.RegisterAPIRoutes(r, h)

	log.Printf("🚀 服务启动, 模型: %s, 端口: %d", cfg.Model.Name, cfg.Server.Port)
	if err := r.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		panic(err)
	}
}
