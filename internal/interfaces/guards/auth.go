package guards

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gnest/internal/kernel"
	"gnest/internal/pkg/token"
)

var (
	// ErrUnauthorized 缺少或无效的凭证
	ErrUnauthorized = errors.New("unauthorized")

	// TokenKey 非 HTTP 协议可以直接把 bearer token 放到这个 key 下
	TokenKey = kernel.TokenFor("guards", kernel.PurposeGuards, "bearer")
	// ClaimsKey Auth 校验通过后写入 claims
	ClaimsKey = kernel.TokenFor("guards", kernel.PurposeGuards, "claims")
)

const AuthorizationHeader = "Authorization"

type headerGetter interface {
	GetHeader(key string) string
}

// AuthGuard 校验 bearer JWT
type AuthGuard struct {
	issuer *token.Issuer
}

func Auth(issuer *token.Issuer) *AuthGuard {
	return &AuthGuard{issuer: issuer}
}

func (g *AuthGuard) CanActivate(ctx *kernel.Context, _ any) (bool, error) {
	raw := Bearer(ctx)
	if raw == "" {
		return false, fmt.Errorf("%w: token must be not empty", ErrUnauthorized)
	}
	claims, err := g.issuer.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Refresh {
		return false, fmt.Errorf("%w: refresh token used as access token", ErrUnauthorized)
	}
	ctx.SetValue(ClaimsKey, claims)
	return true, nil
}

// Equals 同一个 issuer 只注册一次
func (g *AuthGuard) Equals(other any) bool {
	o, ok := other.(*AuthGuard)
	return ok && o.issuer == g.issuer
}

// Bearer 依次从 TokenKey、Raw 的 Authorization 头中取出 token
func Bearer(ctx *kernel.Context) string {
	if v, ok := ctx.Get(TokenKey); ok {
		if s, ok := v.(string); ok {
			return strings.TrimPrefix(s, "Bearer ")
		}
	}
	var header string
	switch raw := ctx.Raw.(type) {
	case headerGetter:
		header = raw.GetHeader(AuthorizationHeader)
	case *http.Request:
		header = raw.Header.Get(AuthorizationHeader)
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// ClaimsFrom 返回 Auth 写入的 claims
func ClaimsFrom(ctx *kernel.Context) (*token.Claims, bool) {
	v, ok := ctx.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	c, ok := v.(*token.Claims)
	return c, ok
}
