package cache

import (
	"context"
	"fmt"
	"time"

	"SyncFM/db"
)

// SessionCache 会话在线状态缓存。WebSocket 心跳续期，TTL 过期
// 即视为离线，用于跨实例的在线判定。
type SessionCache struct {
	ttl time.Duration
}

// NewSessionCache 创建会话缓存
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &SessionCache{ttl: ttl}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:online:%s", sessionID)
}

// UpdateSessionPresence 标记会话在线并续期
func (c *SessionCache) UpdateSessionPresence(ctx context.Context, sessionID string, userID int64) error {
	if db.RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return db.RedisClient.Set(ctx, sessionKey(sessionID), userID, c.ttl).Err()
}

// RemoveSessionPresence 移除会话在线标记
func (c *SessionCache) RemoveSessionPresence(ctx context.Context, sessionID string) error {
	if db.RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return db.RedisClient.Del(ctx, sessionKey(sessionID)).Err()
}

// IsSessionOnline 会话是否在线
func (c *SessionCache) IsSessionOnline(ctx context.Context, sessionID string) (bool, error) {
	if db.RedisClient == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	n, err := db.RedisClient.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
