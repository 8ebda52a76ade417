package pgsql

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Create 单条插入
func Create[T any](ctx context.Context, db *gorm.DB, obj *T) error {
	return db.WithContext(ctx).Create(obj).Error
}

// Save 更新或插入
func Save[T any](ctx context.Context, db *gorm.DB, obj *T) error {
	return db.WithContext(ctx).Save(obj).Error
}

// First 查询第一条，未找到时返回 (nil, nil)
func First[T any](ctx context.Context, db *gorm.DB, cond map[string]interface{}) (*T, error) {
	var out T
	err := db.WithContext(ctx).Where(cond).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Exists 是否存在
func Exists[T any](ctx context.Context, db *gorm.DB, cond map[string]interface{}) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(new(T)).Where(cond).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update 指定字段更新
func Update[T any](ctx context.Context, db *gorm.DB, cond map[string]interface{}, fields map[string]interface{}) error {
	return db.WithContext(ctx).Model(new(T)).Where(cond).Updates(fields).Error
}
