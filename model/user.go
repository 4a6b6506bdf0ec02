package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SyncPlay 能力等级
const (
	SyncPlayAccessCreateAndJoin = "CreateAndJoinGroups"
	SyncPlayAccessJoinOnly      = "JoinGroups"
	SyncPlayAccessNone          = "None"
)

// Int64List 存储为 JSON 的 int64 数组
type Int64List []int64

// Value 实现 driver.Valuer 接口
func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口
func (l *Int64List) Scan(value interface{}) error {
	if value == nil {
		*l = Int64List{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("无法将 %T 转换为 Int64List", value)
	}
	return json.Unmarshal(bytes, l)
}

// User 用户账号及其媒体访问策略
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"size:128"`
	PasswordHash string    `json:"-" gorm:"size:128;not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// 协同播放与媒体库访问策略
	SyncPlayAccess    string    `json:"syncPlayAccess" gorm:"size:32;not null;default:'CreateAndJoinGroups'"`
	MaxParentalRating *int      `json:"maxParentalRating,omitempty"`
	EnableAllFolders  bool      `json:"enableAllFolders" gorm:"not null;default:true"`
	EnabledFolders    Int64List `json:"enabledFolders" gorm:"type:json"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// CanCreateSyncPlayGroup 是否允许建组
func (u *User) CanCreateSyncPlayGroup() bool {
	return u.SyncPlayAccess == SyncPlayAccessCreateAndJoin
}

// CanJoinSyncPlayGroup 是否允许入组
func (u *User) CanJoinSyncPlayGroup() bool {
	return u.SyncPlayAccess == SyncPlayAccessCreateAndJoin ||
		u.SyncPlayAccess == SyncPlayAccessJoinOnly
}

// UserInfo 对外暴露的用户摘要
type UserInfo struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}
