package syncplay

import "SyncFM/model"

// 可见性取值与存储层保持一致
const (
	GroupVisibilityPublic     = model.GroupVisibilityPublic
	GroupVisibilityInviteOnly = model.GroupVisibilityInviteOnly
	GroupVisibilityPrivate    = model.GroupVisibilityPrivate
)

// userPermissions 单个用户的显式权限行
type userPermissions struct {
	Playback bool
	Playlist bool
}

// AccessList 分组的成员权限表。显式行优先于开放默认值；
// 管理员隐含全部权限。创建者永远是管理员，不可降级。
// 非并发安全，由持有分组锁的调用方串行访问。
type AccessList struct {
	creatorID int64
	admins    map[int64]bool
	explicit  map[int64]userPermissions

	openPlayback bool
	openPlaylist bool

	visibility string
	invited    map[int64]bool
}

// NewAccessList 创建权限表，创建者自动成为管理员
func NewAccessList(creatorID int64, visibility string, invited []int64, openPlayback, openPlaylist bool) *AccessList {
	al := &AccessList{
		creatorID:    creatorID,
		admins:       map[int64]bool{creatorID: true},
		explicit:     make(map[int64]userPermissions),
		openPlayback: openPlayback,
		openPlaylist: openPlaylist,
		visibility:   visibility,
		invited:      make(map[int64]bool),
	}
	for _, id := range invited {
		al.invited[id] = true
	}
	return al
}

// Visibility 当前可见性
func (al *AccessList) Visibility() string { return al.visibility }

// SetVisibility 更新可见性
func (al *AccessList) SetVisibility(v string) { al.visibility = v }

// CreatorID 创建者
func (al *AccessList) CreatorID() int64 { return al.creatorID }

// IsAdmin 是否管理员
func (al *AccessList) IsAdmin(userID int64) bool { return al.admins[userID] }

// IsInvited 是否在邀请名单（创建者与受邀者视为已邀请）
func (al *AccessList) IsInvited(userID int64) bool {
	return userID == al.creatorID || al.invited[userID]
}

// SetInvited 替换邀请名单
func (al *AccessList) SetInvited(ids []int64) {
	al.invited = make(map[int64]bool, len(ids))
	for _, id := range ids {
		al.invited[id] = true
	}
}

// CanJoin 用户能否加入：Public 放行，InviteOnly 查邀请名单，
// Private 仅创建者
func (al *AccessList) CanJoin(userID int64) bool {
	switch al.visibility {
	case GroupVisibilityPublic:
		return true
	case GroupVisibilityInviteOnly:
		return al.IsInvited(userID)
	case GroupVisibilityPrivate:
		return userID == al.creatorID
	}
	return false
}

// HasPlaybackAccess 播放控制权限：管理员 > 显式行 > 开放默认
func (al *AccessList) HasPlaybackAccess(userID int64) bool {
	if al.admins[userID] {
		return true
	}
	if p, ok := al.explicit[userID]; ok {
		return p.Playback
	}
	return al.openPlayback
}

// HasPlaylistAccess 队列编辑权限：管理员 > 显式行 > 开放默认
func (al *AccessList) HasPlaylistAccess(userID int64) bool {
	if al.admins[userID] {
		return true
	}
	if p, ok := al.explicit[userID]; ok {
		return p.Playlist
	}
	return al.openPlaylist
}

// SetOpenDefaults 更新开放默认值
func (al *AccessList) SetOpenDefaults(playback, playlist *bool) {
	if playback != nil {
		al.openPlayback = *playback
	}
	if playlist != nil {
		al.openPlaylist = *playlist
	}
}

// OpenPlayback 开放播放默认值
func (al *AccessList) OpenPlayback() bool { return al.openPlayback }

// OpenPlaylist 开放队列默认值
func (al *AccessList) OpenPlaylist() bool { return al.openPlaylist }

// SetExplicit 替换显式权限表
func (al *AccessList) SetExplicit(entries []PermissionEntry) {
	al.explicit = make(map[int64]userPermissions, len(entries))
	for _, e := range entries {
		al.explicit[e.UserID] = userPermissions{Playback: e.Playback, Playlist: e.Playlist}
	}
}

// SetAdministrators 替换管理员集合，创建者强制保留
func (al *AccessList) SetAdministrators(ids []int64) {
	al.admins = map[int64]bool{al.creatorID: true}
	for _, id := range ids {
		al.admins[id] = true
	}
}

// Administrators 当前管理员列表
func (al *AccessList) Administrators() []int64 {
	out := make([]int64, 0, len(al.admins))
	for id := range al.admins {
		out = append(out, id)
	}
	return out
}
