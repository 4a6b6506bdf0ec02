package server

import (
	"context"
	"net/http"

	"SyncFM/core/auth"
	"SyncFM/core/session"
	"SyncFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionSocketHandler 建立会话通道。每个连接分配一个新的会话
// 标识，客户端在后续命令请求中携带该标识。浏览器的 WebSocket
// 无法自定义请求头，令牌从查询参数读取。
func (h *APIHandler) SessionSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ParseToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &session.Client{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		SessionID: uuid.NewString(),
		UserID:    claims.UserID,
		Username:  claims.Username,
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), h.handleSessionMessage)

	// 告知客户端分配到的会话标识
	if err := h.hub.SendSessionAssigned(client.SessionID); err != nil {
		logger.Warn("下发会话标识失败",
			logger.ErrorField(err),
			logger.String("session", client.SessionID))
	}
}

// handleSessionMessage 会话通道上行消息处理。心跳与状态上报在
// 读循环内消化，其余类型目前直接忽略。
func (h *APIHandler) handleSessionMessage(ctx context.Context, client *session.Client, msg *session.WSMessage) {
	logger.Debug("未识别的会话消息",
		logger.String("session", client.SessionID),
		logger.String("type", string(msg.Type)))
}
