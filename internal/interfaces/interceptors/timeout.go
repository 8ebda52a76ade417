package interceptors

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"gnest/internal/kernel"
)

type outcome struct {
	out any
	err error
}

// Timeout 限制 next 的执行时间，超时返回 kernel.ErrTimeout。
// next 收到的 Context 携带截止时间，应当自行退出。
func Timeout(d time.Duration) kernel.InterceptorFunc {
	return func(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
		if d <= 0 {
			return next.Handle(ctx, in)
		}
		c, cancel := context.WithTimeout(ctx.Parent(), d)
		defer cancel()

		done := make(chan outcome, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- outcome{nil, &RecoveryError{Value: r, Stack: debug.Stack()}}
				}
			}()
			out, err := next.Handle(ctx.Derive(c), in)
			done <- outcome{out, err}
		}()

		select {
		case r := <-done:
			return r.out, r.err
		case <-c.Done():
			if errors.Is(c.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", kernel.ErrTimeout, d)
			}
			return nil, c.Err()
		}
	}
}
