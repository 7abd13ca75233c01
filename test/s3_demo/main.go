// S3 客户端 测试程序：上传、校验、列出、删除一个临时文件
package main

import (
	"context"
	"fmt"
	"os"

	"farshore.ai/comfy-serverless/config"
	"farshore.ai/comfy-serverless/core"
	"farshore.ai/comfy-serverless/model"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := &model.Config{}
	config.ApplyEnvOverrides(cfg)
	if !cfg.S3.Configured() {
		fmt.Println("R2 凭据未配置，请先设置 R2_* 环境变量")
		return
	}

	s3, err := core.NewS3Client(cfg.S3)
	if err != nil {
		fmt.Println(err)
		return
	}

	// 造一个临时文件
	tmp, err := os.CreateTemp("", "s3demo_*.txt")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.Remove(tmp.Name())
	tmp.WriteString("hello from comfy-serverless")
	tmp.Close()

	ctx := context.Background()

	result, err := s3.UploadFileWithMetadata(ctx, tmp.Name(), "demo/output", map[string]string{"model": "demo"})
	if err != nil {
		fmt.Println("上传失败:", err)
		return
	}
	fmt.Println("上传成功:", result.URL)

	fmt.Println("对象存在:", s3.FileExists(ctx, result.ObjectKey))

	keys, err := s3.ListFiles(ctx, "demo/", 10)
	if err != nil {
		fmt.Println("列出失败:", err)
		return
	}
	fmt.Println("demo/ 下对象:", keys)

	if err := s3.DeleteFile(ctx, result.ObjectKey); err != nil {
		fmt.Println("删除失败:", err)
		return
	}
	fmt.Println("已删除:", result.ObjectKey)
}
