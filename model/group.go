package model

import "time"

// 分组可见性
const (
	GroupVisibilityPublic     = "Public"
	GroupVisibilityInviteOnly = "InviteOnly"
	GroupVisibilityPrivate    = "Private"
)

// GroupInfo 分组概要（API 响应用）。分组本身只存在于内存，
// 这里是对外暴露的快照。
type GroupInfo struct {
	GroupID       string    `json:"groupId"`
	GroupName     string    `json:"groupName"`
	Visibility    string    `json:"visibility"`
	State         string    `json:"state"`
	Participants  []string  `json:"participants"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
