package core

import (
	"fmt"
	"log"
	"os"
)

// 日志颜色常量
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
)

// 日志类型
type LogType string

const (
	LogTypeOrchestrator  LogType = "ORCHESTRATOR"
	LogTypeComfyClient   LogType = "COMFY_CLIENT"
	LogTypeInputResolver LogType = "INPUT_RESOLVER"
	LogTypeConfigurator  LogType = "CONFIGURATOR"
	LogTypeDispatcher    LogType = "DISPATCHER"
)

// 日志配置
type LogConfig struct {
	Type  LogType
	Name  string
	Color string
}

// 预定义的日志配置
var logConfigs = map[LogType]LogConfig{
	LogTypeOrchestrator: {
		Type:  LogTypeOrchestrator,
		Name:  "Orchestrator",
		Color: ColorGreen,
	},
	LogTypeComfyClient: {
		Type:  LogTypeComfyClient,
		Name:  "ComfyClient",
		Color: ColorCyan,
	},
	LogTypeInputResolver: {
		Type:  LogTypeInputResolver,
		Name:  "InputResolver",
		Color: ColorBlue,
	},
	LogTypeConfigurator: {
		Type:  LogTypeConfigurator,
		Name:  "Configurator",
		Color: ColorPurple,
	},
	LogTypeDispatcher: {
		Type:  LogTypeDispatcher,
		Name:  "Dispatcher",
		Color: ColorYellow,
	},
}

// Logger 结构体
type Logger struct {
	logType LogType
}

// NewLogger 创建新的日志器
func NewLogger(logType LogType) *Logger {
	return &Logger{
		logType: logType,
	}
}

// 检查是否支持颜色输出
func supportsColor() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}

	if os.Getenv("OS") == "Windows_NT" {
		return true
	}

	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Printf 格式化输出日志
func (l *Logger) Printf(format string, args ...interface{}) {
	if supportsColor() {
		// 整行颜色包裹
		config := logConfigs[l.logType]
		coloredFormat := fmt.Sprintf("%s[%s] %s%s",
			config.Color,
			config.Name,
			format,
			ColorReset,
		)
		log.Printf(coloredFormat, args...)
	} else {
		plainFormat := fmt.Sprintf("[%s] %s", l.logType, format)
		log.Printf(plainFormat, args...)
	}
}

// 全局日志器实例
var (
	OrchestratorLogger  = NewLogger(LogTypeOrchestrator)
	ComfyClientLogger   = NewLogger(LogTypeComfyClient)
	InputResolverLogger = NewLogger(LogTypeInputResolver)
	ConfiguratorLogger  = NewLogger(LogTypeConfigurator)
	DispatcherLogger    = NewLogger(LogTypeDispatcher)
)

// 快捷函数
func LogOrchestrator(format string, args ...interface{}) {
	OrchestratorLogger.Printf(format, args...)
}

func LogComfyClient(format string, args ...interface{}) {
	ComfyClientLogger.Printf(format, args...)
}

func LogInputResolver(format string, args ...interface{}) {
	InputResolverLogger.Printf(format, args...)
}

func LogConfigurator(format string, args ...interface{}) {
	ConfiguratorLogger.Printf(format, args...)
}

func LogDispatcher(format string, args ...interface{}) {
	DispatcherLogger.Printf(format, args...)
}
