// 同步生成接口 测试程序：向本地 handler 提交一个任务并打印响应
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

func main() {
	endpoint := "http://127.0.0.1:8000/run"

	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"input_type":     "image",
			"person_count":   "single",
			"prompt":         "A person talking naturally",
			"width":          512,
			"height":         512,
			"image_url":      "https://example.com/face.jpg",
			"wav_url":        "https://example.com/speech.wav",
			"use_r2_storage": true,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		fmt.Println(err)
		return
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Post(endpoint, "application/json", bytes.NewBuffer(data))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("status: %d\n%s\n", resp.StatusCode, string(body))
}
