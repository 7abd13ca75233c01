package model

// S3Config 定义 R2/S3 对象存储配置。密钥一般通过环境变量注入，见 config.ApplyEnvOverrides。
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`   // S3 兼容服务地址（R2 为 <account>.r2.cloudflarestorage.com）
	Bucket    string `yaml:"bucket"`     // 桶名
	Region    string `yaml:"region"`     // 区域，R2 固定为 auto
	AccessKey string `yaml:"access_key"` // 访问密钥
	SecretKey string `yaml:"secret_key"` // 密钥
	UseSSL    bool   `yaml:"use_ssl"`    // 是否使用 SSL
	PublicURL string `yaml:"public_url"` // 公网访问域名，空则按 endpoint 拼接
}

// Configured 判断凭据是否完整，决定上传交付是否可用
func (c S3Config) Configured() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ServerConfig 定义服务配置
type ServerConfig struct {
	Port int `yaml:"port"` // 服务监听端口
}

// ComfyUIConfig 定义推理引擎配置
type ComfyUIConfig struct {
	Host           string `yaml:"host"`            // 引擎地址
	Port           int    `yaml:"port"`            // 引擎端口
	UseSSL         bool   `yaml:"use_ssl"`         // ws/wss、http/https 切换
	InputDir       string `yaml:"input_dir"`       // 引擎 input 根目录，媒体文件需拷贝到这里
	OutputDir      string `yaml:"output_dir"`      // 引擎 output 根目录
	StartupTimeout int    `yaml:"startup_timeout"` // 启动等待秒数
	ExecTimeout    int    `yaml:"exec_timeout"`    // 单任务执行超时秒数，0 表示不限
}

// ModelConfig 定义模型配置
type ModelConfig struct {
	Name        string `yaml:"name"`         // 模型名，用于上传前缀和输出文件名
	WorkflowDir string `yaml:"workflow_dir"` // workflow 模板目录
	ExamplesDir string `yaml:"examples_dir"` // 默认示例媒体目录
	FPS         int    `yaml:"fps"`          // 帧率，0 则用默认 25
}

// VolumeConfig 定义共享卷配置
type VolumeConfig struct {
	Path string `yaml:"path"` // 共享卷挂载路径
}

// FeishuConfig 定义飞书报警配置
type FeishuConfig struct {
	WebHook string `yaml:"webhook"` // 飞书 WebHook 地址，空则不报警
}

// Config 整体配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	ComfyUI ComfyUIConfig `yaml:"comfyui"`
	S3      S3Config      `yaml:"s3"`
	Model   ModelConfig   `yaml:"model"`
	Volume  VolumeConfig  `yaml:"volume"`
	Feishu  FeishuConfig  `yaml:"feishu"`
	TempDir string        `yaml:"temp_dir"` // 任务暂存目录根，空则用系统临时目录
}
