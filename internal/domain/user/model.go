package user

import (
	"net/http"
	"time"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserName  string    `gorm:"uniqueIndex;size:64" json:"userName"`
	Password  string    `json:"-"`
	Salt      string    `json:"-"`
	Role      string    `gorm:"size:32" json:"role"`
	Email     string    `gorm:"size:255" json:"email"`
	FullName  string    `gorm:"size:255" json:"fullName"`
	Status    string    `gorm:"size:16" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateUserDTO struct {
	UserName string `json:"userName" form:"userName" binding:"required,min=3,max=64"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
	Email    string `json:"email" form:"email" binding:"omitempty,email"`
	FullName string `json:"fullName" form:"fullName"`
}

type LoginDTO struct {
	UserName string `json:"userName" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenDto struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Tokens 登录成功后返回
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ConflictError 用户名已注册
type ConflictError struct {
	UserName string
}

func (e *ConflictError) Error() string {
	return "this username has already been registered: " + e.UserName
}

func (e *ConflictError) ExceptionName() string { return "Conflict" }

// CredentialsError 用户名或密码错误
type CredentialsError struct{}

func (e *CredentialsError) Error() string { return "invalid username or password" }

func (e *CredentialsError) Status() int { return http.StatusUnauthorized }

// Registered 注册成功后发布的领域事件
type Registered struct {
	ID       string    `json:"id"`
	UserName string    `json:"userName"`
	At       time.Time `json:"at"`
}

func (Registered) EventName() string { return "user.registered" }
