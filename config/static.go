package config

import "time"

const (
	DefaultFPS        = 25 // 口型视频默认帧率
	FramePadding      = 81 // 按音频时长推导帧数时的首尾补帧
	DefaultMaxFrames  = 81 // 音频时长探测全部失败时的兜底帧数
	Base64LogMaxChars = 50 // 日志中 Base64 字段的截断长度

	DefaultStartupTimeout = 120 // 引擎启动等待秒数

	ReadyPollInterval = 1 * time.Second // 引擎就绪轮询间隔
	WSConnectInterval = 1 * time.Second // WebSocket 连接重试间隔
	WSConnectAttempts = 30              // WebSocket 连接重试上限
)
