package pgsql

import (
	"context"

	"gorm.io/gorm"
)

// 事务执行器
func (p *PGSQL) Transaction(ctx context.Context, fc func(tx *gorm.DB) error) error {
	return p.DB.WithContext(ctx).Transaction(fc)
}
