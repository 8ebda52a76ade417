package interceptors

import (
	"fmt"
	"runtime/debug"

	"gnest/internal/kernel"
)

// RecoveryError 由 panic 转换而来，携带堆栈
type RecoveryError struct {
	Value any
	Stack []byte
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

func (e *RecoveryError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *RecoveryError) ExceptionName() string { return "Panic" }

// StackTrace 供异常记录使用
func (e *RecoveryError) StackTrace() string { return string(e.Stack) }

// Recover 把 next 中的 panic 转为 *RecoveryError
func Recover() kernel.InterceptorFunc {
	return func(ctx *kernel.Context, in any, next kernel.Handler) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, &RecoveryError{Value: r, Stack: debug.Stack()}
			}
		}()
		return next.Handle(ctx, in)
	}
}
