package core

import "errors"

// 各阶段错误种类。组件边界按值返回并用 %w 包裹，调用方用 errors.Is 判断。

// 输入解析
var (
	ErrNotFound        = errors.New("input file not found")
	ErrFetchFailed     = errors.New("failed to fetch input from url")
	ErrInvalidEncoding = errors.New("invalid base64 input")
	ErrNoInputProvided = errors.New("no input provided and no default available")
)

// 任务执行
var (
	ErrSubmitFailed    = errors.New("failed to queue prompt")
	ErrExecutionFailed = errors.New("execution failed")
	ErrNoOutputFile    = errors.New("no output file generated")
)

// 输出交付
var (
	ErrUploadFailed         = errors.New("failed to upload to r2")
	ErrCopyFailed           = errors.New("failed to copy to network volume")
	ErrEncodeFailed         = errors.New("failed to encode output")
	ErrStorageNotConfigured = errors.New("r2 storage not configured")
)
