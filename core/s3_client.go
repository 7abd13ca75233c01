package core

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"farshore.ai/comfy-serverless/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Client 封装 R2/S3 兼容对象存储
type S3Client struct {
	Client *minio.Client
	Config model.S3Config
}

// UploadResult 一次上传的结果
type UploadResult struct {
	URL       string
	ObjectKey string
	Size      int64
	Timestamp int64
	Filename  string
}

// NewS3Client 创建一个新的 S3 客户端实例
func NewS3Client(cfg model.S3Config) (*S3Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 S3 失败: %w", err)
	}

	return &S3Client{
		Client: client,
		Config: cfg,
	}, nil
}

// UploadFileWithMetadata 上传文件并附带元数据，对象名为 <prefix>/<时间戳>_<原文件名>。
// 时间戳加文件名保证并发任务的 key 不冲突。
func (s *S3Client) UploadFileWithMetadata(ctx context.Context, filePath, prefix string, extra map[string]string) (*UploadResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s 不存在", ErrUploadFailed, filePath)
	}

	filename := filepath.Base(filePath)
	timestamp := time.Now().Unix()
	objectKey := fmt.Sprintf("%s/%d_%s", strings.TrimSuffix(prefix, "/"), timestamp, filename)

	metadata := map[string]string{
		"original-filename": filename,
		"upload-timestamp":  fmt.Sprintf("%d", timestamp),
		"file-size":         fmt.Sprintf("%d", info.Size()),
	}
	for k, v := range extra {
		metadata[k] = v
	}

	contentType := detectContentType(filePath)

	LogDispatcher("⏫ 正在上传: %s -> %s", filePath, objectKey)
	_, err = s.Client.FPutObject(ctx, s.Config.Bucket, objectKey, filePath, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	url := s.BuildPublicURL(objectKey)
	LogDispatcher("✅ 上传成功: %s (%d bytes)", url, info.Size())

	return &UploadResult{
		URL:       url,
		ObjectKey: objectKey,
		Size:      info.Size(),
		Timestamp: timestamp,
		Filename:  filename,
	}, nil
}

// DeleteFile 删除对象
func (s *S3Client) DeleteFile(ctx context.Context, objectKey string) error {
	if err := s.Client.RemoveObject(ctx, s.Config.Bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象失败: %w", err)
	}
	return nil
}

// FileExists 判断对象是否存在
func (s *S3Client) FileExists(ctx context.Context, objectKey string) bool {
	_, err := s.Client.StatObject(ctx, s.Config.Bucket, objectKey, minio.StatObjectOptions{})
	return err == nil
}

// ListFiles 按前缀列出对象 key
func (s *S3Client) ListFiles(ctx context.Context, prefix string, maxKeys int) ([]string, error) {
	var keys []string
	for obj := range s.Client.ListObjects(ctx, s.Config.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
		if maxKeys > 0 && len(keys) >= maxKeys {
			break
		}
	}
	return keys, nil
}

// 辅助函数 detectContentType 自动识别文件类型
func detectContentType(filePath string) string {
	ext := filepath.Ext(filePath)
	if ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}

	// 如果扩展名无法识别，再尝试读取文件头
	f, err := os.Open(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, _ := f.Read(buffer)
	return http.DetectContentType(buffer[:n])
}

// 辅助函数 BuildPublicURL 构建公有访问 URL。
// 配置了 public_url（R2 自定义域名）优先；AWS 用虚拟主机风格；其余按 endpoint 拼接。
func (s *S3Client) BuildPublicURL(key string) string {
	if s.Config.PublicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.Config.PublicURL, "/"), key)
	}

	endpoint := strings.TrimSuffix(s.Config.Endpoint, "/")

	if strings.Contains(endpoint, "amazonaws.com") {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.Config.Bucket, key)
	}

	scheme := "http"
	if s.Config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, s.Config.Bucket, key)
}
