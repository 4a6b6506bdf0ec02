package repository

import (
	"context"

	"SyncFM/model"

	"gorm.io/gorm"
)

// ItemRepository 媒体条目数据访问接口
type ItemRepository interface {
	Create(ctx context.Context, item *model.MediaItem) error
	GetByID(ctx context.Context, id int64) (*model.MediaItem, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.MediaItem, error)
	ListByFolder(ctx context.Context, folderID int64) ([]*model.MediaItem, error)
	ListFolders(ctx context.Context) ([]*model.MediaFolder, error)
}

// gormItemRepository GORM 实现
type gormItemRepository struct {
	db *gorm.DB
}

// NewGormItemRepository 创建 GORM 媒体条目仓库
func NewGormItemRepository(db *gorm.DB) ItemRepository {
	return &gormItemRepository{db: db}
}

// Create 创建媒体条目
func (r *gormItemRepository) Create(ctx context.Context, item *model.MediaItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// GetByID 根据ID获取媒体条目
func (r *gormItemRepository) GetByID(ctx context.Context, id int64) (*model.MediaItem, error) {
	var item model.MediaItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// GetByIDs 批量获取媒体条目，结果不保证顺序
func (r *gormItemRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.MediaItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*model.MediaItem
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListByFolder 列出目录下的媒体条目
func (r *gormItemRepository) ListByFolder(ctx context.Context, folderID int64) ([]*model.MediaItem, error) {
	var items []*model.MediaItem
	err := r.db.WithContext(ctx).Where("folder_id = ?", folderID).Order("id").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListFolders 列出所有媒体目录
func (r *gormItemRepository) ListFolders(ctx context.Context) ([]*model.MediaFolder, error) {
	var folders []*model.MediaFolder
	err := r.db.WithContext(ctx).Order("id").Find(&folders).Error
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// MediaCatalog 面向协同播放模块的媒体库适配
type MediaCatalog struct {
	repo ItemRepository
}

// NewMediaCatalog 创建媒体库适配
func NewMediaCatalog(repo ItemRepository) *MediaCatalog {
	return &MediaCatalog{repo: repo}
}

// Item 按ID查询媒体条目
func (c *MediaCatalog) Item(ctx context.Context, itemID int64) (*model.MediaItem, error) {
	return c.repo.GetByID(ctx, itemID)
}

// Items 批量查询媒体条目
func (c *MediaCatalog) Items(ctx context.Context, itemIDs []int64) ([]*model.MediaItem, error) {
	return c.repo.GetByIDs(ctx, itemIDs)
}
