package pgsql

import (
	"context"

	"gorm.io/gorm"
)

// 分页
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page <= 0 {
			page = 1
		}
		if pageSize <= 0 {
			pageSize = 10
		}
		offset := (page - 1) * pageSize
		return db.Offset(offset).Limit(pageSize)
	}
}

// 排序
func Order(field string, desc bool) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		order := field
		if desc {
			order += " DESC"
		} else {
			order += " ASC"
		}
		return db.Order(order)
	}
}

// Map 条件查询
func WhereMap(conds map[string]interface{}) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(conds) == 0 {
			return db
		}
		return db.Where(conds)
	}
}

// 范围查询
func WhereRange(field string, min, max interface{}) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if min != nil && max != nil {
			return db.Where(field+" BETWEEN ? AND ?", min, max)
		}
		if min != nil {
			return db.Where(field+" >= ?", min)
		}
		if max != nil {
			return db.Where(field+" <= ?", max)
		}
		return db
	}
}

// FindWithPage 分页 + 条件查询
func FindWithPage[T any](ctx context.Context, db *gorm.DB, page, pageSize int, conds ...func(*gorm.DB) *gorm.DB) (*PageResult[T], error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	var list []T
	base := func() *gorm.DB { return db.WithContext(ctx).Model(new(T)).Scopes(conds...) }
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	if err := base().Scopes(Paginate(page, pageSize)).Find(&list).Error; err != nil {
		return nil, err
	}
	return &PageResult[T]{
		List:      list,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		PageCount: PageCount(total, pageSize),
	}, nil
}

func PageCount(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
