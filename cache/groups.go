package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SyncFM/db"
	"SyncFM/model"

	"github.com/redis/go-redis/v9"
)

// groupListTTL 分组列表快照的缓存时长。列表是纯读放大接口，
// 短缓存即可明显降低对分组锁的争用。
const groupListTTL = 2 * time.Second

// GroupListCache 按用户缓存可见分组列表
type GroupListCache struct{}

// NewGroupListCache 创建分组列表缓存
func NewGroupListCache() *GroupListCache {
	return &GroupListCache{}
}

func groupListKey(userID int64) string {
	return fmt.Sprintf("syncplay:grouplist:%d", userID)
}

// Get 读取缓存的分组列表，未命中返回 (nil, nil)
func (c *GroupListCache) Get(ctx context.Context, userID int64) ([]*model.GroupInfo, error) {
	if db.RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := db.RedisClient.Get(ctx, groupListKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group list from cache: %w", err)
	}
	var groups []*model.GroupInfo
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached group list: %w", err)
	}
	return groups, nil
}

// Set 写入分组列表快照
func (c *GroupListCache) Set(ctx context.Context, userID int64, groups []*model.GroupInfo) error {
	if db.RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to marshal group list: %w", err)
	}
	return db.RedisClient.Set(ctx, groupListKey(userID), data, groupListTTL).Err()
}
