package syncplay

import "testing"

func TestCanJoin(t *testing.T) {
	tests := []struct {
		name       string
		visibility string
		invited    []int64
		userID     int64
		want       bool
	}{
		{"Public任何人可加入", GroupVisibilityPublic, nil, 42, true},
		{"InviteOnly受邀者可加入", GroupVisibilityInviteOnly, []int64{42}, 42, true},
		{"InviteOnly未受邀者拒绝", GroupVisibilityInviteOnly, []int64{7}, 42, false},
		{"InviteOnly创建者视为受邀", GroupVisibilityInviteOnly, nil, 1, true},
		{"Private仅创建者", GroupVisibilityPrivate, []int64{42}, 42, false},
		{"Private创建者可加入", GroupVisibilityPrivate, nil, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al := NewAccessList(1, tt.visibility, tt.invited, true, true)
			if got := al.CanJoin(tt.userID); got != tt.want {
				t.Errorf("CanJoin(%d) = %v, 期望 %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestPermissionPrecedence(t *testing.T) {
	al := NewAccessList(1, GroupVisibilityPublic, nil, false, true)

	// 开放默认值
	if al.HasPlaybackAccess(42) {
		t.Error("开放播放默认为关时普通成员不应有播放权限")
	}
	if !al.HasPlaylistAccess(42) {
		t.Error("开放队列默认为开时普通成员应有队列权限")
	}

	// 显式行覆盖开放默认
	al.SetExplicit([]PermissionEntry{{UserID: 42, Playback: true, Playlist: false}})
	if !al.HasPlaybackAccess(42) {
		t.Error("显式行授予播放权限后应放行")
	}
	if al.HasPlaylistAccess(42) {
		t.Error("显式行收回队列权限后应拒绝")
	}

	// 管理员覆盖显式行
	al.SetAdministrators([]int64{42})
	if !al.HasPlaybackAccess(42) || !al.HasPlaylistAccess(42) {
		t.Error("管理员应隐含全部权限")
	}

	// 创建者永远是管理员
	if !al.HasPlaybackAccess(1) || !al.HasPlaylistAccess(1) {
		t.Error("创建者应隐含全部权限")
	}
}

func TestCreatorCannotBeDemoted(t *testing.T) {
	al := NewAccessList(1, GroupVisibilityPublic, nil, true, true)

	al.SetAdministrators([]int64{7})
	if !al.IsAdmin(1) {
		t.Error("替换管理员集合后创建者仍应是管理员")
	}
	if !al.IsAdmin(7) {
		t.Error("新管理员未生效")
	}

	al.SetExplicit([]PermissionEntry{{UserID: 1, Playback: false, Playlist: false}})
	if !al.HasPlaybackAccess(1) {
		t.Error("显式行不应降级创建者")
	}
}

func TestSetOpenDefaults(t *testing.T) {
	al := NewAccessList(1, GroupVisibilityPublic, nil, true, true)

	off := false
	al.SetOpenDefaults(&off, nil)
	if al.OpenPlayback() {
		t.Error("SetOpenDefaults 未更新开放播放默认值")
	}
	if !al.OpenPlaylist() {
		t.Error("nil 指针不应改动开放队列默认值")
	}
}

func TestSetInvitedReplacesList(t *testing.T) {
	al := NewAccessList(1, GroupVisibilityInviteOnly, []int64{7}, true, true)

	al.SetInvited([]int64{8})
	if al.CanJoin(7) {
		t.Error("旧受邀者应被替换掉")
	}
	if !al.CanJoin(8) {
		t.Error("新受邀者应可加入")
	}
}
