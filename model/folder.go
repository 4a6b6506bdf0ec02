package model

import "time"

// MediaFolder 媒体目录，用户级访问控制的粒度单位
type MediaFolder struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (MediaFolder) TableName() string {
	return "media_folders"
}
