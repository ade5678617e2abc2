package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
)

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeOutcome      MessageType = "outcome"      // 提交结果事件
	MessageTypeConnectivity MessageType = "connectivity" // 连通性状态变化
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger
}

// Hub 管理所有WebSocket连接并向打开的页面推送事件。
//
// 事件只有两类：提交结果（驱动状态横幅）和连通性变化。
// 所有连接收到全部事件，不做订阅过滤，站点页面自行决定展示。
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	mu         sync.RWMutex
	log        *zap.Logger
	upgrader   websocket.Upgrader

	// onConnect 在客户端注册时回调。页面打开或回到前台都会带来
	// 一条新连接，用它触发一次发件箱冲刷。
	onConnect func()
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，用于连接握手验证
//   - log: 日志记录器
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		log:        log,
		upgrader:   upgraderFactory(allowedOrigins),
	}
}

// SetOnConnect 注册客户端连接回调，必须在 Run 启动前调用
func (h *Hub) SetOnConnect(fn func()) {
	h.onConnect = fn
}

// Run 启动Hub事件循环，阻塞到上下文取消
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub 停止")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("客户端已连接", zap.String("id", client.ID))
			if h.onConnect != nil {
				h.onConnect()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Debug("客户端已断开", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAll(msg)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// PublishOutcome 向所有连接推送提交结果事件
func (h *Hub) PublishOutcome(event domain.OutcomeEvent) {
	h.publish(MessageTypeOutcome, event)
}

// PublishConnectivity 向所有连接推送连通性变化事件
func (h *Hub) PublishConnectivity(event domain.ConnectivityEvent) {
	h.publish(MessageTypeConnectivity, event)
}

func (h *Hub) publish(kind MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("事件序列化失败", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- msg:
	default:
		// 广播队列满了说明没有消费者在跑，丢弃事件
		h.log.Warn("广播队列已满，事件丢弃", zap.String("type", string(kind)))
	}
}

// HandleConnection 处理WebSocket升级请求，gin 路由入口
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket 升级失败", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
		log:  h.log,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// broadcastToAll 把消息发给所有连接，发不动的连接直接踢掉
func (h *Hub) broadcastToAll(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("消息序列化失败", zap.Error(err))
		return
	}

	h.mu.RLock()
	var stale []*Client
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	// 直接摘除发不动的连接，不能走 unregister 通道，
	// 那个通道由当前循环消费，回投会死锁
	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
		}
		h.mu.Unlock()
		for _, client := range stale {
			_ = client.conn.Close()
			h.log.Debug("慢客户端被移除", zap.String("id", client.ID))
		}
	}
}

// pingAllClients 定期向所有连接发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{Type: MessageTypePing, Timestamp: time.Now()}
	data, _ := json.Marshal(msg)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		_ = client.conn.Close()
		delete(h.clients, id)
	}
}

// ClientCount 返回当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump 读取客户端消息，只处理 pong 和关闭
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePong {
			_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		}
	}
}

// writePump 把发送队列写到连接
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
