package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"SyncFM/cache"
	"SyncFM/core/syncplay"
	"SyncFM/logger"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	// 系统消息
	MsgTypeSession MessageType = "session" // 会话标识分配
	MsgTypePing    MessageType = "ping"    // 心跳
	MsgTypePong    MessageType = "pong"    // 心跳响应
	MsgTypeError   MessageType = "error"   // 错误消息

	// 客户端上报
	MsgTypeReportState MessageType = "report_state" // 上报本地播放状态

	// 服务端下发
	MsgTypeGroupUpdate MessageType = "GroupUpdate"     // 组状态通知
	MsgTypeCommand     MessageType = "SyncPlayCommand" // 播放指令
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// StateReportData 客户端上报的本地播放状态
type StateReportData struct {
	HasPlayback     bool    `json:"hasPlayback"`
	NowPlayingQueue []int64 `json:"nowPlayingQueue,omitempty"`
	PlayingIndex    int     `json:"playingIndex,omitempty"`
	PositionTicks   int64   `json:"positionTicks,omitempty"`
	IsPaused        bool    `json:"isPaused,omitempty"`
}

// Client WebSocket 客户端，对应一个会话
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
	UserID    int64
	Username  string

	// 本地播放状态快照，由 report_state 消息更新
	mu       sync.RWMutex
	playback StateReportData
}

// Hub 会话 WebSocket 管理中心。每个连接即一个会话，
// 会话标识在连接建立时由服务端分配。
type Hub struct {
	// 会话 -> 客户端
	sessions map[string]*Client

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 互斥锁
	mu sync.RWMutex

	// 会话在线状态缓存
	presence *cache.SessionCache

	// 会话断开回调（用于通知协同播放管理器）
	onDisconnect func(sessionID string)

	// 关闭信号
	done chan struct{}
}

// NewHub 创建会话 Hub
func NewHub(presence *cache.SessionCache) *Hub {
	return &Hub{
		sessions:   make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// SetDisconnectHandler 设置会话断开回调
func (h *Hub) SetDisconnectHandler(fn func(sessionID string)) {
	h.onDisconnect = fn
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 同一会话标识重复建连时踢掉旧连接
	if old, exists := h.sessions[client.SessionID]; exists {
		h.removeClient(old)
	}
	h.sessions[client.SessionID] = client

	ctx := context.Background()
	if err := h.presence.UpdateSessionPresence(ctx, client.SessionID, client.UserID); err != nil {
		logger.Warn("更新会话在线状态失败",
			logger.ErrorField(err),
			logger.String("session", client.SessionID),
			logger.Int64("user", client.UserID))
	}

	logger.Info("会话已连接",
		logger.String("session", client.SessionID),
		logger.Int64("user", client.UserID),
		logger.String("username", client.Username))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	removed := h.removeClient(client)
	h.mu.Unlock()

	if removed && h.onDisconnect != nil {
		h.onDisconnect(client.SessionID)
	}
}

// removeClient 移除客户端（内部方法，需要持有锁）
func (h *Hub) removeClient(client *Client) bool {
	current, ok := h.sessions[client.SessionID]
	if !ok || current != client {
		return false
	}
	delete(h.sessions, client.SessionID)
	close(client.Send)

	ctx := context.Background()
	if err := h.presence.RemoveSessionPresence(ctx, client.SessionID); err != nil {
		logger.Warn("移除会话在线状态失败",
			logger.ErrorField(err),
			logger.String("session", client.SessionID))
	}

	logger.Info("会话已断开",
		logger.String("session", client.SessionID),
		logger.Int64("user", client.UserID))
	return true
}

// cleanup 清理所有连接
func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sessions {
		close(client.Send)
	}
	h.sessions = make(map[string]*Client)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Client 获取指定会话的客户端
func (h *Hub) Client(sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sessionID]
}

// OnlineSessions 返回所有在线会话的即时快照
func (h *Hub) OnlineSessions() []*syncplay.SessionInfo {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions))
	for _, client := range h.sessions {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	infos := make([]*syncplay.SessionInfo, 0, len(clients))
	for _, client := range clients {
		infos = append(infos, client.Snapshot())
	}
	return infos
}

// SendGroupUpdate 投递组状态通知给指定会话
func (h *Hub) SendGroupUpdate(ctx context.Context, sessionID string, update *syncplay.GroupUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal group update: %w", err)
	}
	return h.sendToSession(sessionID, &WSMessage{Type: MsgTypeGroupUpdate, Data: data})
}

// SendCommand 投递播放指令给指定会话
func (h *Hub) SendCommand(ctx context.Context, sessionID string, cmd *syncplay.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	return h.sendToSession(sessionID, &WSMessage{Type: MsgTypeCommand, Data: data})
}

// SendSessionAssigned 下发分配的会话标识
func (h *Hub) SendSessionAssigned(sessionID string) error {
	return h.sendToSession(sessionID, &WSMessage{Type: MsgTypeSession, SessionID: sessionID})
}

// sendToSession 投递消息给指定会话
func (h *Hub) sendToSession(sessionID string, msg *WSMessage) error {
	h.mu.RLock()
	client := h.sessions[sessionID]
	h.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("session not connected: %s", sessionID)
	}

	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for session: %s", sessionID)
	}
}

// ========== Client 方法 ==========

// Snapshot 返回会话的即时快照
func (c *Client) Snapshot() *syncplay.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	queue := make([]int64, len(c.playback.NowPlayingQueue))
	copy(queue, c.playback.NowPlayingQueue)

	return &syncplay.SessionInfo{
		ID:              c.SessionID,
		UserID:          c.UserID,
		Username:        c.Username,
		HasPlayback:     c.playback.HasPlayback,
		NowPlayingQueue: queue,
		PlayingIndex:    c.playback.PlayingIndex,
		PositionTicks:   c.playback.PositionTicks,
		IsPaused:        c.playback.IsPaused,
	}
}

// updatePlayback 更新本地播放状态快照
func (c *Client) updatePlayback(report *StateReportData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playback = *report
}

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(8192) // 8KB，信令消息可能携带 SDP
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket 读取失败",
						logger.ErrorField(err),
						logger.String("session", c.SessionID),
						logger.Int64("user", c.UserID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("无效的消息格式",
					logger.ErrorField(err),
					logger.String("session", c.SessionID))
				continue
			}

			// 处理心跳
			if msg.Type == MsgTypePing {
				if err := c.Hub.presence.UpdateSessionPresence(ctx, c.SessionID, c.UserID); err != nil {
					logger.Warn("更新会话在线状态失败",
						logger.ErrorField(err),
						logger.String("session", c.SessionID),
						logger.Int64("user", c.UserID))
				}

				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
				continue
			}

			// 处理播放状态上报
			if msg.Type == MsgTypeReportState {
				var report StateReportData
				if err := json.Unmarshal(msg.Data, &report); err != nil {
					logger.Warn("无效的播放状态上报",
						logger.ErrorField(err),
						logger.String("session", c.SessionID))
					continue
				}
				c.updatePlayback(&report)
				continue
			}

			// 调用消息处理器
			handler(ctx, c, &msg)
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
