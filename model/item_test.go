package model

import "testing"

func intPtr(v int) *int { return &v }

func TestMediaItemAccessibleBy(t *testing.T) {
	tests := []struct {
		name string
		item MediaItem
		user User
		want bool
	}{
		{
			name: "全目录可见且无分级限制",
			item: MediaItem{FolderID: 1, RatingLevel: intPtr(18)},
			user: User{EnableAllFolders: true},
			want: true,
		},
		{
			name: "分级超出用户上限",
			item: MediaItem{FolderID: 1, RatingLevel: intPtr(18)},
			user: User{EnableAllFolders: true, MaxParentalRating: intPtr(12)},
			want: false,
		},
		{
			name: "分级在用户上限内",
			item: MediaItem{FolderID: 1, RatingLevel: intPtr(12)},
			user: User{EnableAllFolders: true, MaxParentalRating: intPtr(12)},
			want: true,
		},
		{
			name: "无分级条目不受上限约束",
			item: MediaItem{FolderID: 1},
			user: User{EnableAllFolders: true, MaxParentalRating: intPtr(0)},
			want: true,
		},
		{
			name: "目录在可用清单内",
			item: MediaItem{FolderID: 2},
			user: User{EnabledFolders: Int64List{1, 2}},
			want: true,
		},
		{
			name: "目录不在可用清单内",
			item: MediaItem{FolderID: 3},
			user: User{EnabledFolders: Int64List{1, 2}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.AccessibleBy(&tt.user); got != tt.want {
				t.Errorf("AccessibleBy() = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestUserSyncPlayCapabilities(t *testing.T) {
	tests := []struct {
		access    string
		canCreate bool
		canJoin   bool
	}{
		{SyncPlayAccessCreateAndJoin, true, true},
		{SyncPlayAccessJoinOnly, false, true},
		{SyncPlayAccessNone, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.access, func(t *testing.T) {
			u := &User{SyncPlayAccess: tt.access}
			if got := u.CanCreateSyncPlayGroup(); got != tt.canCreate {
				t.Errorf("CanCreateSyncPlayGroup() = %v, 期望 %v", got, tt.canCreate)
			}
			if got := u.CanJoinSyncPlayGroup(); got != tt.canJoin {
				t.Errorf("CanJoinSyncPlayGroup() = %v, 期望 %v", got, tt.canJoin)
			}
		})
	}
}
