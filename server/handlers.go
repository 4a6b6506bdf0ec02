package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"SyncFM/cache"
	"SyncFM/config"
	"SyncFM/core/auth"
	"SyncFM/core/session"
	"SyncFM/core/syncplay"
	"SyncFM/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	userRepo   repository.UserRepository
	itemRepo   repository.ItemRepository
	manager    *syncplay.Manager
	hub        *session.Hub
	groupCache *cache.GroupListCache
	cfg        *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	userRepo repository.UserRepository,
	itemRepo repository.ItemRepository,
	manager *syncplay.Manager,
	hub *session.Hub,
	groupCache *cache.GroupListCache,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:   userRepo,
		itemRepo:   itemRepo,
		manager:    manager,
		hub:        hub,
		groupCache: groupCache,
		cfg:        cfg,
	}
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// sessionFromRequest 解析请求所属的会话。命令通道要求客户端携带
// 建连时分配的会话标识，且会话归属必须与令牌用户一致。
func (h *APIHandler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*syncplay.SessionInfo, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionId")
	}
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return nil, false
	}

	client := h.hub.Client(sessionID)
	if client == nil || client.UserID != userID {
		http.Error(w, "Unknown session", http.StatusBadRequest)
		return nil, false
	}
	return client.Snapshot(), true
}

// ========== 查询参数解析 ==========

// queryInt64List 解析重复或逗号分隔的整型列表参数
func queryInt64List(r *http.Request, key string) ([]int64, error) {
	var out []int64
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value for %s: %q", key, part)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// queryStringList 解析重复或逗号分隔的字符串列表参数
func queryStringList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryBoolList 解析重复或逗号分隔的布尔列表参数
func queryBoolList(r *http.Request, key string) ([]bool, error) {
	var out []bool
	for _, raw := range r.URL.Query()[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseBool(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value for %s: %q", key, part)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// queryBool 解析布尔参数，缺省返回 def
func queryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

// queryBoolPtr 解析可选布尔参数，缺省返回 nil
func queryBoolPtr(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// queryInt64 解析整型参数，缺省返回 def
func queryInt64(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// queryInt 解析整型参数，缺省返回 def
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
