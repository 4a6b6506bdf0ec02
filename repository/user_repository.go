package repository

import (
	"context"

	"SyncFM/model"

	"gorm.io/gorm"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListWithSyncPlayAccess(ctx context.Context) ([]*model.User, error)
	UpdateSyncPlayAccess(ctx context.Context, userID int64, access string) error
}

// gormUserRepository GORM 实现
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GORM 用户仓库
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create 创建用户
func (r *gormUserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID 根据ID获取用户
func (r *gormUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername 根据用户名获取用户
func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetByEmail 根据邮箱获取用户
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListWithSyncPlayAccess 列出所有具备协同播放权限的用户
func (r *gormUserRepository) ListWithSyncPlayAccess(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("sync_play_access <> ?", model.SyncPlayAccessNone).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateSyncPlayAccess 更新用户的协同播放权限
func (r *gormUserRepository) UpdateSyncPlayAccess(ctx context.Context, userID int64, access string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("sync_play_access", access).Error
}

// UserDirectory 面向协同播放模块的用户目录适配
type UserDirectory struct {
	repo UserRepository
}

// NewUserDirectory 创建用户目录适配
func NewUserDirectory(repo UserRepository) *UserDirectory {
	return &UserDirectory{repo: repo}
}

// User 按ID查询用户
func (d *UserDirectory) User(ctx context.Context, userID int64) (*model.User, error) {
	return d.repo.GetByID(ctx, userID)
}

// UsersWithSyncPlayAccess 查询具备协同播放权限的用户
func (d *UserDirectory) UsersWithSyncPlayAccess(ctx context.Context) ([]*model.User, error) {
	return d.repo.ListWithSyncPlayAccess(ctx)
}
