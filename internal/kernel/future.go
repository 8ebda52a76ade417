package kernel

import (
	"context"
	"sync"
)

// Future[T] 代表一个异步操作的最终结果，可被取消。
type Future[T any] struct {
	done      chan struct{}
	once      sync.Once
	value     T
	err       error
	cancelled bool
	cancel    context.CancelFunc
}

// NewFuture 创建一个新的 Future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete settles the future. Later completions are ignored.
func (f *Future[T]) Complete(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = value, err
		settled = true
		close(f.done)
	})
	return settled
}

// Cancel abandons the future: waiters observe ErrCancelled and the work behind
// it is told to stop. Cancelling a settled future does nothing.
func (f *Future[T]) Cancel() {
	var zero T
	f.once.Do(func() {
		f.value, f.err, f.cancelled = zero, ErrCancelled, true
		close(f.done)
	})
	if f.cancel != nil {
		f.cancel()
	}
}

// Cancelled reports whether the future ended by cancellation.
func (f *Future[T]) Cancelled() bool {
	select {
	case <-f.done:
		return f.cancelled
	default:
		return false
	}
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await 阻塞直到 Future 完成
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}

// AwaitContext waits for the future or ctx, whichever ends first. Giving up on
// the wait does not cancel the future.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then 链式操作：成功时执行 fn
func (f *Future[T]) Then(fn func(T) (any, error)) *Future[any] {
	next := NewFuture[any]()
	next.cancel = f.Cancel
	go func() {
		val, err := f.Await()
		if err != nil {
			next.Complete(nil, err)
			return
		}
		next.Complete(fn(val))
	}()
	return next
}

// Catch 链式操作：处理错误并尝试恢复。Cancellation is not recoverable.
func (f *Future[T]) Catch(fn func(error) (T, error)) *Future[T] {
	next := NewFuture[T]()
	next.cancel = f.Cancel
	go func() {
		val, err := f.Await()
		if err == nil || f.Cancelled() {
			next.Complete(val, err)
			return
		}
		next.Complete(fn(err))
	}()
	return next
}

// CompletedFuture 将同步结果包装为已完成的 Future
func CompletedFuture[T any](value T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Complete(value, err)
	return f
}

// CancelledFuture returns a future that is already cancelled.
func CancelledFuture[T any]() *Future[T] {
	f := NewFuture[T]()
	f.Cancel()
	return f
}

// RunAsync 启动一个 Goroutine 执行函数并返回 Future
func RunAsync[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.Complete(zero, newPanicError(r))
			}
		}()
		f.Complete(fn())
	}()
	return f
}

// runCancellable runs fn under a context derived from parent that is also
// cancelled by stop or by Future.Cancel. Once cancelled, fn's result is dropped.
func runCancellable[T any](parent context.Context, stop <-chan struct{}, fn func(ctx context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(parent)
	f := NewFuture[T]()
	f.cancel = cancel

	result := make(chan FutureResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- FutureResult[T]{Err: newPanicError(r)}
			}
		}()
		v, err := fn(ctx)
		result <- FutureResult[T]{Value: v, Err: err}
	}()
	go func() {
		defer cancel()
		select {
		case r := <-result:
			f.Complete(r.Value, r.Err)
		case <-stop:
			f.Cancel()
		case <-ctx.Done():
			f.Cancel()
		case <-f.done:
		}
	}()
	return f
}

// FutureResult[T] 封装了结果或错误
type FutureResult[T any] struct {
	Value T
	Err   error
}
