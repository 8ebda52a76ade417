package handlers

import (
	"context"

	"gnest/internal/domain/user"
	"gnest/internal/pkg/response"
	"gnest/internal/pkg/token"
)

// Emitter 发布领域事件，由 events.Bus 实现
type Emitter interface {
	Emit(ctx context.Context, event any) ([]any, error)
}

type UserHandler struct {
	userService *user.UserService
	events      Emitter
}

func NewUserHandler(userService *user.UserService, events Emitter) *UserHandler {
	return &UserHandler{
		userService: userService,
		events:      events,
	}
}

func (h *UserHandler) Register(ctx context.Context, userInfo *user.CreateUserDTO) (*response.Result, error) {
	u, err := h.userService.Register(ctx, userInfo)
	if err != nil {
		return nil, err
	}
	if h.events != nil {
		// 监听器失败不影响注册结果
		_, _ = h.events.Emit(ctx, user.Registered{ID: u.ID, UserName: u.UserName, At: u.CreatedAt})
	}
	return response.OK(u), nil
}

func (h *UserHandler) Login(ctx context.Context, userInfo *user.LoginDTO) (*response.Result, error) {
	_, tokens, err := h.userService.Authenticate(ctx, userInfo.UserName, userInfo.Password)
	if err != nil {
		return nil, err
	}
	return response.OK(tokens), nil
}

func (h *UserHandler) RefreshToken(ctx context.Context, dto *user.RefreshTokenDto) (*response.Result, error) {
	accessToken, err := h.userService.RefreshToken(ctx, dto.RefreshToken)
	if err != nil {
		return nil, err
	}
	return response.OK(map[string]string{"accessToken": accessToken}), nil
}

// Me 需要挂在 Auth 守卫之后，claims 由参数装饰器注入
func (h *UserHandler) Me(ctx context.Context, claims *token.Claims) (*response.Result, error) {
	u, err := h.userService.Me(ctx, claims)
	if err != nil {
		return nil, err
	}
	return response.OK(u), nil
}
