package config

import (
	"fmt"
	"os"
	"strconv"

	"farshore.ai/comfy-serverless/model"
	"gopkg.in/yaml.v3"
)

// LoadConfig 从 YAML 文件加载配置，并用环境变量覆盖部署相关字段
func LoadConfig(path string) (*model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config model.Config

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	ApplyEnvOverrides(&config)
	applyDefaults(&config)
	return &config, nil
}

// ApplyEnvOverrides 环境变量优先于配置文件。
// 密钥类配置（R2_*）只建议走环境变量，避免落盘。
func ApplyEnvOverrides(config *model.Config) {
	if v := os.Getenv("R2_ACCOUNT_ID"); v != "" {
		config.S3.Endpoint = fmt.Sprintf("%s.r2.cloudflarestorage.com", v)
		config.S3.UseSSL = true
		config.S3.Region = "auto"
	}
	if v := os.Getenv("R2_ACCESS_KEY_ID"); v != "" {
		config.S3.AccessKey = v
	}
	if v := os.Getenv("R2_SECRET_ACCESS_KEY"); v != "" {
		config.S3.SecretKey = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		config.S3.Bucket = v
	}
	if v := os.Getenv("R2_PUBLIC_URL"); v != "" {
		config.S3.PublicURL = v
	}
	if v := os.Getenv("NETWORK_VOLUME_PATH"); v != "" {
		config.Volume.Path = v
	}
	if v := os.Getenv("COMFYUI_HOST"); v != "" {
		config.ComfyUI.Host = v
	}
	if v := os.Getenv("COMFYUI_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.ComfyUI.Port = port
		}
	}
}

// applyDefaults 填充缺省值，保证零值配置也能跑起来
func applyDefaults(config *model.Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.ComfyUI.Host == "" {
		config.ComfyUI.Host = "127.0.0.1"
	}
	if config.ComfyUI.Port == 0 {
		config.ComfyUI.Port = 8188
	}
	if config.ComfyUI.InputDir == "" {
		config.ComfyUI.InputDir = "/ComfyUI/input"
	}
	if config.ComfyUI.OutputDir == "" {
		config.ComfyUI.OutputDir = "/ComfyUI/output"
	}
	if config.ComfyUI.StartupTimeout == 0 {
		config.ComfyUI.StartupTimeout = DefaultStartupTimeout
	}
	if config.Model.Name == "" {
		config.Model.Name = "infinitetalk"
	}
	if config.Model.WorkflowDir == "" {
		config.Model.WorkflowDir = "/workflows"
	}
	if config.Model.ExamplesDir == "" {
		config.Model.ExamplesDir = "/examples"
	}
	if config.Model.FPS == 0 {
		config.Model.FPS = DefaultFPS
	}
	if config.Volume.Path == "" {
		config.Volume.Path = "/runpod-volume"
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
}
