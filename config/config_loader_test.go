package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
comfyui:
  host: "10.0.0.5"
  port: 8188
  exec_timeout: 600
model:
  name: "infinitetalk"
  workflow_dir: "/workflows"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "10.0.0.5", cfg.ComfyUI.Host)
	assert.Equal(t, 600, cfg.ComfyUI.ExecTimeout)
	assert.Equal(t, "infinitetalk", cfg.Model.Name)
}

// 空配置也能起服务：所有字段都有缺省值
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.ComfyUI.Host)
	assert.Equal(t, 8188, cfg.ComfyUI.Port)
	assert.Equal(t, "/ComfyUI/input", cfg.ComfyUI.InputDir)
	assert.Equal(t, "/ComfyUI/output", cfg.ComfyUI.OutputDir)
	assert.Equal(t, DefaultStartupTimeout, cfg.ComfyUI.StartupTimeout)
	assert.Equal(t, "infinitetalk", cfg.Model.Name)
	assert.Equal(t, DefaultFPS, cfg.Model.FPS)
	assert.Equal(t, "/runpod-volume", cfg.Volume.Path)
	assert.NotEmpty(t, cfg.TempDir)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

// 环境变量覆盖配置文件，R2 账号 ID 展开成 endpoint
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("R2_ACCOUNT_ID", "abc123")
	t.Setenv("R2_ACCESS_KEY_ID", "ak")
	t.Setenv("R2_SECRET_ACCESS_KEY", "sk")
	t.Setenv("R2_BUCKET_NAME", "videos")
	t.Setenv("R2_PUBLIC_URL", "https://cdn.example.com")
	t.Setenv("NETWORK_VOLUME_PATH", "/mnt/volume")
	t.Setenv("COMFYUI_HOST", "gpu-node")
	t.Setenv("COMFYUI_PORT", "9188")

	cfg, err := LoadConfig(writeConfigFile(t, `
comfyui:
  host: "10.0.0.5"
`))
	require.NoError(t, err)

	assert.Equal(t, "abc123.r2.cloudflarestorage.com", cfg.S3.Endpoint)
	assert.True(t, cfg.S3.UseSSL)
	assert.Equal(t, "auto", cfg.S3.Region)
	assert.Equal(t, "ak", cfg.S3.AccessKey)
	assert.Equal(t, "sk", cfg.S3.SecretKey)
	assert.Equal(t, "videos", cfg.S3.Bucket)
	assert.Equal(t, "https://cdn.example.com", cfg.S3.PublicURL)
	assert.Equal(t, "/mnt/volume", cfg.Volume.Path)
	assert.Equal(t, "gpu-node", cfg.ComfyUI.Host)
	assert.Equal(t, 9188, cfg.ComfyUI.Port)
	assert.True(t, cfg.S3.Configured())
}

func TestEnvOverridesIgnoreBadPort(t *testing.T) {
	t.Setenv("COMFYUI_PORT", "not-a-port")

	cfg, err := LoadConfig(writeConfigFile(t, `
comfyui:
  port: 8188
`))
	require.NoError(t, err)
	assert.Equal(t, 8188, cfg.ComfyUI.Port)
}
