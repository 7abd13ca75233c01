package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"farshore.ai/comfy-serverless/model"
)

// OutputDispatcher 负责产物交付：三种方式互斥，按调用方偏好选其一。
// s3 为 nil 表示进程启动时没有配置对象存储。
type OutputDispatcher struct {
	s3         *S3Client
	modelName  string
	volumePath string
}

// NewOutputDispatcher 创建输出交付器
func NewOutputDispatcher(s3 *S3Client, modelName, volumePath string) *OutputDispatcher {
	return &OutputDispatcher{
		s3:         s3,
		modelName:  modelName,
		volumePath: volumePath,
	}
}

// Dispatch 选取首个产物文件并按偏好交付。
// 优先级：上传（且存储已配置）> 共享卷 > Base64 内联。
// 只勾了上传但存储未配置时直接报错，让调用方知道缺凭据。
func (d *OutputDispatcher) Dispatch(ctx context.Context, artifacts *model.ArtifactSet, req *model.JobRequest, stagingDir string) (*model.JobResponse, error) {
	outputPath := artifacts.FirstFile()
	if outputPath == "" {
		return nil, ErrNoOutputFile
	}
	if _, err := os.Stat(outputPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOutputFile, outputPath)
	}
	LogDispatcher("选取输出文件: %s", outputPath)

	switch {
	case req.UseR2Storage && d.s3 != nil:
		return d.dispatchUpload(ctx, outputPath, stagingDir)

	case req.NetworkVolume:
		if req.UseR2Storage {
			LogDispatcher("⚠️ 请求了上传但存储未配置，降级到共享卷交付")
		}
		return d.dispatchVolume(outputPath, stagingDir)

	case req.UseR2Storage:
		return nil, ErrStorageNotConfigured

	default:
		return d.dispatchInline(outputPath)
	}
}

// dispatchUpload 上传对象存储，返回公网 URL
func (d *OutputDispatcher) dispatchUpload(ctx context.Context, outputPath, stagingDir string) (*model.JobResponse, error) {
	LogDispatcher("交付方式: 上传 R2")
	result, err := d.s3.UploadFileWithMetadata(ctx, outputPath,
		fmt.Sprintf("%s/output", d.modelName),
		map[string]string{
			"model":   d.modelName,
			"task_id": filepath.Base(stagingDir),
		})
	if err != nil {
		return nil, err
	}

	return &model.JobResponse{
		Status:   "success",
		R2URL:    result.URL,
		FileSize: result.Size,
		Filename: result.Filename,
	}, nil
}

// dispatchVolume 拷贝到共享卷，返回目标路径
func (d *OutputDispatcher) dispatchVolume(outputPath, stagingDir string) (*model.JobResponse, error) {
	destPath := filepath.Join(d.volumePath,
		fmt.Sprintf("%s_%s.mp4", d.modelName, filepath.Base(stagingDir)))

	LogDispatcher("交付方式: 共享卷 %s", destPath)
	if err := CopyFile(outputPath, destPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}

	return &model.JobResponse{
		Status:    "success",
		VideoPath: destPath,
	}, nil
}

// dispatchInline 整文件读入并 Base64 编码进响应体。
// 不设大小上限，体积管控是调用方的事。
func (d *OutputDispatcher) dispatchInline(outputPath string) (*model.JobResponse, error) {
	LogDispatcher("交付方式: Base64 内联")
	encoded, err := EncodeFileToBase64(outputPath)
	if err != nil {
		return nil, err
	}

	return &model.JobResponse{
		Status: "success",
		Video:  encoded,
	}, nil
}
