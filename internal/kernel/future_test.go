package kernel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gnest/internal/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompleteOnce(t *testing.T) {
	f := kernel.NewFuture[int]()
	assert.True(t, f.Complete(1, nil))
	assert.False(t, f.Complete(2, nil))
	f.Cancel()

	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, f.Cancelled())
}

func TestFutureThenCatch(t *testing.T) {
	v, err := kernel.RunAsync(func() (int, error) { return 20, nil }).
		Then(func(n int) (any, error) { return n + 1, nil }).
		Await()
	require.NoError(t, err)
	assert.Equal(t, 21, v)

	boom := errors.New("boom")
	recovered, err := kernel.CompletedFuture(0, boom).
		Catch(func(err error) (int, error) { return -1, nil }).
		Await()
	require.NoError(t, err)
	assert.Equal(t, -1, recovered)

	_, err = kernel.CompletedFuture(0, boom).
		Then(func(int) (any, error) { return "unreached", nil }).
		Await()
	assert.ErrorIs(t, err, boom)
}

func TestFutureCancelNotRecoverable(t *testing.T) {
	called := false
	_, err := kernel.CancelledFuture[int]().
		Catch(func(error) (int, error) { called = true; return 0, nil }).
		Await()
	assert.ErrorIs(t, err, kernel.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFutureAwaitContext(t *testing.T) {
	f := kernel.NewFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.AwaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.Cancelled())

	f.Complete("late", nil)
	v, err := f.AwaitContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestRunAsyncPanic(t *testing.T) {
	_, err := kernel.RunAsync(func() (int, error) { panic("async boom") }).Await()
	assert.ErrorIs(t, err, kernel.ErrPanic)
	assert.Contains(t, err.Error(), "async boom")
}
