package syncplay

import (
	"encoding/json"
	"time"
)

// RequestType 客户端请求类型
type RequestType string

const (
	// 播放控制请求
	RequestPlay          RequestType = "Play"
	RequestPause         RequestType = "Pause"
	RequestUnpause       RequestType = "Unpause"
	RequestStop          RequestType = "Stop"
	RequestSeek          RequestType = "Seek"
	RequestBuffering     RequestType = "Buffering"
	RequestReady         RequestType = "Ready"
	RequestIgnoreWait    RequestType = "SetIgnoreWait"
	RequestNextTrack     RequestType = "NextTrack"
	RequestPreviousTrack RequestType = "PreviousTrack"

	// 队列编辑请求
	RequestSetPlaylistItem    RequestType = "SetPlaylistItem"
	RequestQueue              RequestType = "Queue"
	RequestRemoveFromPlaylist RequestType = "RemoveFromPlaylist"
	RequestMovePlaylistItem   RequestType = "MovePlaylistItem"
	RequestSetRepeatMode      RequestType = "SetRepeatMode"
	RequestSetShuffleMode     RequestType = "SetShuffleMode"

	// 成员维护请求
	RequestPing RequestType = "Ping"
)

// 入队模式
const (
	QueueModeQueue     = "Queue"
	QueueModeQueueNext = "QueueNext"
)

// permissionKind 请求所需的权限类别
type permissionKind int

const (
	permissionNone permissionKind = iota
	permissionPlayback
	permissionPlaylist
)

// requestPermissions 每种请求所需的权限（§成员权限模型）
var requestPermissions = map[RequestType]permissionKind{
	RequestPlay:          permissionPlayback,
	RequestPause:         permissionPlayback,
	RequestUnpause:       permissionPlayback,
	RequestStop:          permissionPlayback,
	RequestSeek:          permissionPlayback,
	RequestBuffering:     permissionPlayback,
	RequestReady:         permissionPlayback,
	RequestIgnoreWait:    permissionPlayback,
	RequestNextTrack:     permissionPlayback,
	RequestPreviousTrack: permissionPlayback,

	RequestSetPlaylistItem:    permissionPlaylist,
	RequestQueue:              permissionPlaylist,
	RequestRemoveFromPlaylist: permissionPlaylist,
	RequestMovePlaylistItem:   permissionPlaylist,
	RequestSetRepeatMode:      permissionPlaylist,
	RequestSetShuffleMode:     permissionPlaylist,

	RequestPing: permissionNone,
}

// Request 一条进入分组协调器的播放/队列请求。
// 各字段按请求类型取用，未使用的字段保持零值。
type Request struct {
	Type RequestType

	// Play
	Queue              []int64
	PlayingIndex       int
	StartPositionTicks int64

	// Seek
	PositionTicks int64

	// SetPlaylistItem / NextTrack / PreviousTrack / Buffering / Ready
	PlaylistItemID string

	// RemoveFromPlaylist
	PlaylistItemIDs []string

	// MovePlaylistItem
	NewIndex int

	// Queue / QueueNext
	ItemIDs   []int64
	QueueMode string

	// SetRepeatMode / SetShuffleMode
	Mode string

	// Buffering / Ready：客户端上报的本地时间与播放状态
	When      time.Time
	IsPlaying bool

	// Ping
	Ping float64

	// SetIgnoreWait
	IgnoreWait bool
}

// NewGroupRequest 创建分组的参数
type NewGroupRequest struct {
	GroupName          string
	Visibility         string
	InvitedUsers       []int64
	OpenPlaybackAccess bool
	OpenPlaylistAccess bool
}

// JoinGroupRequest 加入分组的参数
type JoinGroupRequest struct {
	GroupID string
}

// PermissionEntry 显式的用户权限行
type PermissionEntry struct {
	UserID   int64
	Playback bool
	Playlist bool
}

// UpdateSettingsRequest 分组设置更新（仅管理员）
type UpdateSettingsRequest struct {
	GroupName          *string
	Visibility         *string
	InvitedUsers       []int64
	OpenPlaybackAccess *bool
	OpenPlaylistAccess *bool
	AccessList         []PermissionEntry
	Administrators     []int64
}

// WebRTCRequest 信令转发请求，负载对服务端完全不透明
type WebRTCRequest struct {
	To             string          `json:"to,omitempty"`
	NewSession     bool            `json:"newSession,omitempty"`
	SessionLeaving bool            `json:"sessionLeaving,omitempty"`
	ICECandidate   json.RawMessage `json:"iceCandidate,omitempty"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
}
