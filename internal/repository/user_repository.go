package repository

import (
	"context"
	"fitcoach_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Exists 鉴权中间件用来确认 token 对应的用户仍然存在
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) EmailTakenByOther(ctx context.Context, email, userID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("email = ? AND id <> ?", email, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) UpdateColumns(ctx context.Context, id string, columns map[string]interface{}) error {
	if len(columns) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.User{UUIDBase: model.UUIDBase{ID: id}}).Updates(columns).Error
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hashed string) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("password", hashed).Error
}
