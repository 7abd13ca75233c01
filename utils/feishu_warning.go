package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

const PrefixWord = "🚨[comfy-serverless]"

// 全局变量
var Feishu *FeishuClient

var (
	// 记录每个报警类型+标识的上次发送时间
	alertCache = make(map[string]time.Time)
	alertMu    sync.Mutex
	// 限频间隔
	alertInterval = 10 * time.Second
)

// InitFeishuClient 函数初始化全局 FeishuClient
func InitFeishuClient(webhook string) {
	Feishu = NewFeishuClient(webhook)
	log.Println("✅ 飞书客户端初始化成功")
}

// Feishu 消息结构体
type FeishuMsg struct {
	MsgType string      `json:"msg_type"`
	Content interface{} `json:"content"`
}

type TextContent struct {
	Text string `json:"text"`
}

// FeishuClient 用于发送消息
type FeishuClient struct {
	Webhook string
}

// NewFeishuClient 初始化一个 FeishuClient
func NewFeishuClient(webhook string) *FeishuClient {
	return &FeishuClient{Webhook: webhook}
}

// SendFeishuMsgAsync 异步发送飞书消息
func (c *FeishuClient) SendFeishuMsgAsync(text string) {
	go func() {
		if err := c.sendFeishuMsg(text); err != nil {
			log.Printf("[Feishu] 消息发送失败: %v", err)
		}
	}()
}

// sendFeishuMsg 内部发送函数
func (c *FeishuClient) sendFeishuMsg(text string) error {
	if c.Webhook == "" {
		return fmt.Errorf("feishu webhook not configured")
	}

	payload := FeishuMsg{
		MsgType: "text",
		Content: TextContent{
			Text: PrefixWord + text,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json marshal error: %v", err)
	}

	resp, err := http.Post(c.Webhook, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("http post error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feishu returned status %d", resp.StatusCode)
	}

	return nil
}

// Warn 统一发送报警，客户端未初始化时直接跳过。
// errorType: job_failed / engine_down / upload_failed ...
// key: 模型名或服务器标识
// message: 报警信息
func Warn(errorType, key, message string) {
	if Feishu == nil {
		return
	}

	cacheKey := fmt.Sprintf("%s_%s", errorType, key)

	alertMu.Lock()
	defer alertMu.Unlock()

	now := time.Now()
	lastTime, exists := alertCache[cacheKey]

	// 同类报警限频，避免刷屏
	if !exists || now.Sub(lastTime) >= alertInterval {
		Feishu.SendFeishuMsgAsync(message)
		alertCache[cacheKey] = now
		log.Printf("✅ 飞书报警发送: %s", message)
	}
}
