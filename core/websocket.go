package core

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"farshore.ai/comfy-serverless/config"
	"github.com/gorilla/websocket"
)

// ComfyUIMessage 引擎事件流的一条消息
type ComfyUIMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// 内部事件类型，与引擎消息共用一个通道
const (
	WS_CONNECTION_ERROR = "ws_connection_error"
	WS_READ_ERROR       = "ws_read_error"
	WS_PARSE_ERROR      = "ws_parse_error"
)

// WsClient 面向单个任务的 WebSocket 事件流客户端。
// 连接阶段按固定间隔有限重试；连上之后一旦断开即视为终态，不做静默重连。
type WsClient struct {
	host     string // host:port
	clientID string
	useSSL   bool
	conn     *websocket.Conn
	msgChan  chan ComfyUIMessage
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// NewWsClient 创建 WebSocket 客户端，clientID 用于在引擎侧划分事件流
func NewWsClient(host string, clientID string, useSSL bool) *WsClient {
	return &WsClient{
		host:     host,
		clientID: clientID,
		useSSL:   useSSL,
		msgChan:  make(chan ComfyUIMessage, 1000),
		stopCh:   make(chan struct{}),
	}
}

// Connect 建立连接，固定 1 秒间隔重试，有限次数
func (c *WsClient) Connect() error {
	scheme := "ws"
	if c.useSSL {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   c.host,
		Path:   "/ws",
	}
	q := u.Query()
	q.Set("clientId", c.clientID)
	u.RawQuery = q.Encode()

	log.Printf("连接 WebSocket: %s", u.String())

	var lastErr error
	for attempt := 1; attempt <= config.WSConnectAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err == nil {
			c.conn = conn
			log.Printf("✅ WebSocket 已连接 (第 %d 次尝试)", attempt)
			return nil
		}
		lastErr = err
		if attempt%5 == 1 {
			log.Printf("WebSocket 连接失败 (%d/%d): %v", attempt, config.WSConnectAttempts, err)
		}
		time.Sleep(config.WSConnectInterval)
	}
	return fmt.Errorf("连接失败: %w", lastErr)
}

// Start 启动读协程，消息推入 Messages 通道。必须在 Connect 成功之后调用。
func (c *WsClient) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.listen()
	}()
}

// Stop 停止客户端并关闭消息通道，可重复调用
func (c *WsClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.wg.Wait()
			close(c.msgChan)
			return fmt.Errorf("关闭 WebSocket 失败: %w", err)
		}
	}

	c.wg.Wait()
	close(c.msgChan)
	return nil
}

// Messages 获取消息通道
func (c *WsClient) Messages() <-chan ComfyUIMessage {
	return c.msgChan
}

// 内部读循环。读错误时推送一条 WS_READ_ERROR 后退出，由消费方决定如何收场。
func (c *WsClient) listen() {
	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isStopped() {
				c.pushMsg(WS_READ_ERROR, map[string]interface{}{"msg": err.Error()})
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var parsed ComfyUIMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			c.pushMsg(WS_PARSE_ERROR, map[string]interface{}{"msg": err.Error()})
			continue
		}

		select {
		case c.msgChan <- parsed:
		default:
			log.Printf("消息队列已满，丢弃消息 type=%s", parsed.Type)
		}
	}
}

func (c *WsClient) isStopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// pushMsg 辅助函数
func (c *WsClient) pushMsg(typ string, v interface{}) {
	select {
	case c.msgChan <- ComfyUIMessage{Type: typ, Data: mustMarshal(v)}:
	default:
		log.Printf("消息队列已满，丢弃内部消息 type=%s", typ)
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
