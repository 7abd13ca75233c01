package core

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"farshore.ai/comfy-serverless/config"
	"farshore.ai/comfy-serverless/model"
)

// TruncateBase64ForLog 截断 Base64 字符串用于日志打印
func TruncateBase64ForLog(s string) string {
	if len(s) > config.Base64LogMaxChars {
		return s[:config.Base64LogMaxChars] + "..."
	}
	return s
}

// ResolveInput 解析一种媒体输入，落地为本地文件。
// 优先级：本地路径 > URL > Base64；三者都缺省时回退 defaultPath，再缺省则报错。
// 返回的 MediaReference 保证指向存在且非空的文件。
func ResolveInput(src model.MediaSource, stagingDir, defaultFilename, defaultPath string) (model.MediaReference, error) {
	// stagingDir 幂等创建
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return model.MediaReference{}, fmt.Errorf("create staging dir: %w", err)
	}

	switch {
	case src.Path != "":
		LogInputResolver("📁 使用本地路径: %s", src.Path)
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return model.MediaReference{}, fmt.Errorf("%w: %s", ErrNotFound, src.Path)
		}
		if _, err := os.Stat(abs); err != nil {
			return model.MediaReference{}, fmt.Errorf("%w: %s", ErrNotFound, src.Path)
		}
		return verified(model.MediaReference{Path: abs, Source: model.SourcePath})

	case src.URL != "":
		LogInputResolver("🌐 下载远程输入: %s", src.URL)
		dest := filepath.Join(stagingDir, defaultFilename)
		if err := downloadToFile(src.URL, dest); err != nil {
			return model.MediaReference{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		return verified(model.MediaReference{Path: dest, Source: model.SourceURL})

	case src.Base64 != "":
		LogInputResolver("🔢 解码 Base64 输入: %s", TruncateBase64ForLog(src.Base64))
		dest := filepath.Join(stagingDir, defaultFilename)
		if err := saveBase64ToFile(src.Base64, dest); err != nil {
			return model.MediaReference{}, err
		}
		return verified(model.MediaReference{Path: dest, Source: model.SourceBase64})

	default:
		if defaultPath != "" {
			if _, err := os.Stat(defaultPath); err == nil {
				LogInputResolver("未提供输入，使用默认文件: %s", defaultPath)
				return verified(model.MediaReference{Path: defaultPath, Source: model.SourceDefault})
			}
		}
		return model.MediaReference{}, ErrNoInputProvided
	}
}

// verified 校验解析结果指向非空文件，兜住上游静默写出空文件的情况
func verified(ref model.MediaReference) (model.MediaReference, error) {
	info, err := os.Stat(ref.Path)
	if err != nil {
		return model.MediaReference{}, fmt.Errorf("%w: %s", ErrNotFound, ref.Path)
	}
	if info.Size() == 0 {
		return model.MediaReference{}, fmt.Errorf("%w: empty file %s", ErrNotFound, ref.Path)
	}
	return ref, nil
}

// downloadToFile 阻塞下载 URL 到本地文件
func downloadToFile(fileURL, dest string) error {
	resp, err := http.Get(fileURL)
	if err != nil {
		return fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	LogInputResolver("✅ 下载完成: %s (%d bytes)", dest, n)
	return nil
}

// saveBase64ToFile 解码 Base64 并写入文件。
// 解码失败返回 ErrInvalidEncoding，和普通 IO 错误区分开，调用方可按 4xx 处理。
func saveBase64ToFile(data, dest string) error {
	// 剥掉 data URI 前缀，例如 "data:image/jpeg;base64,"
	if strings.HasPrefix(data, "data:") {
		if idx := strings.Index(data, ","); idx >= 0 {
			data = data[idx+1:]
		}
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	if err := os.WriteFile(dest, raw, 0o644); err != nil {
		return fmt.Errorf("write decoded file: %w", err)
	}
	LogInputResolver("✅ Base64 已保存: %s (%d bytes)", dest, len(raw))
	return nil
}

// EncodeFileToBase64 读取整个文件并编码为 Base64 字符串
func EncodeFileToBase64(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// CopyFile 拷贝文件内容，目标已存在则覆盖
func CopyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
