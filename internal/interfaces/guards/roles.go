package guards

import "gnest/internal/kernel"

// Roles 要求 claims 中的角色属于 roles 之一，需排在 Auth 之后
func Roles(roles ...string) kernel.GuardFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(ctx *kernel.Context, _ any) (bool, error) {
		claims, ok := ClaimsFrom(ctx)
		if !ok {
			return false, nil
		}
		_, ok = allowed[claims.Role]
		return ok, nil
	}
}
