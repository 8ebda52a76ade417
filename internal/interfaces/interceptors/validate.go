package interceptors

import (
	"reflect"

	"gnest/internal/kernel"

	"github.com/go-playground/validator/v10"
)

// Validate 对结构体 (或其指针) 输入执行 validator 校验，失败返回 validator.ValidationErrors
func Validate(v *validator.Validate) kernel.InterceptorFunc {
	if v == nil {
		v = validator.New()
	}
	return func(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
		if isStruct(in) {
			if err := v.StructCtx(ctx, in); err != nil {
				return nil, err
			}
		}
		return next.Handle(ctx, in)
	}
}

func isStruct(in any) bool {
	t := reflect.TypeOf(in)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		if reflect.ValueOf(in).IsNil() {
			return false
		}
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}
