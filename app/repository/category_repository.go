package repository

import (
	"context"
	"errors"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/model"

	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// DefaultBackgroundKey 返回分类默认背景，分类不存在时返回 ErrNotFound
func (r *CategoryRepository) DefaultBackgroundKey(ctx context.Context, id uint) (string, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Select("id", "default_background_key").First(&category, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return category.DefaultBackgroundKey, nil
}
