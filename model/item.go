package model

import "time"

// MediaItem 媒体库条目元数据。SyncFM 只关心协调播放所需的字段：
// 时长用于位置夹取，分级与目录用于成员访问校验。
type MediaItem struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	RunTimeTicks int64     `json:"runTimeTicks" gorm:"not null;default:0"`
	RatingLevel  *int      `json:"ratingLevel,omitempty"`
	FolderID     int64     `json:"folderId" gorm:"index;not null"`
	ObjectPath   string    `json:"objectPath,omitempty" gorm:"size:512"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (MediaItem) TableName() string {
	return "media_items"
}

// AccessibleBy 条目是否对该用户可见：
// 分级不超过用户上限，且条目所在目录在用户的可用目录内。
func (i *MediaItem) AccessibleBy(u *User) bool {
	if u.MaxParentalRating != nil && i.RatingLevel != nil && *i.RatingLevel > *u.MaxParentalRating {
		return false
	}
	if u.EnableAllFolders {
		return true
	}
	for _, folder := range u.EnabledFolders {
		if folder == i.FolderID {
			return true
		}
	}
	return false
}
