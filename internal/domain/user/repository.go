package user

import (
	"context"

	"gnest/internal/infra/pgsql"

	"gorm.io/gorm"
)

// Repository 用户存储
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByUserName(ctx context.Context, userName string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&User{})
}

func (r *UserRepository) Create(ctx context.Context, user *User) error {
	return pgsql.Create(ctx, r.db, user)
}

// FindByUserName 未找到时返回 (nil, nil)
func (r *UserRepository) FindByUserName(ctx context.Context, userName string) (*User, error) {
	return pgsql.First[User](ctx, r.db, map[string]interface{}{"user_name": userName})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return pgsql.First[User](ctx, r.db, map[string]interface{}{"id": id})
}
