package kernel_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gnest/internal/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderA struct{}
type orderB struct{}

type conflictError struct{ id string }

func (e *conflictError) Error() string         { return "conflict on " + e.id }
func (e *conflictError) ExceptionName() string { return "Conflict" }

type countingRegistry struct {
	*kernel.MemoryRegistry
	unregistered atomic.Int32
}

func (r *countingRegistry) Unregister(t kernel.Token) bool {
	r.unregistered.Add(1)
	return r.MemoryRegistry.Unregister(t)
}

func newHandler(t *testing.T, b kernel.Handler, opts ...kernel.Option) *kernel.GuardedHandler {
	t.Helper()
	opts = append([]kernel.Option{kernel.WithRegistry(kernel.NewRegistry())}, opts...)
	h := kernel.NewGuardedHandler(t.Name(), b, opts...)
	t.Cleanup(h.Destroy)
	return h
}

func suffix(s string) kernel.InterceptorFunc {
	return func(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
		out, err := next.Handle(ctx, in)
		if err != nil {
			return nil, err
		}
		return fmt.Sprint(out) + s, nil
	}
}

func TestGuardedHandlerRunsChain(t *testing.T) {
	tr := &trace{}
	b := &backend{tr: tr}
	h := newHandler(t, b)

	require.NoError(t, h.UseFilters(tr.interceptor("F0")))
	require.NoError(t, h.UseInterceptors(tr.interceptor("I0"), tr.interceptor("I1")))

	out, err := h.Invoke(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "in", out)
	assert.Equal(t, []string{"F0>", "I0>", "I1>", "B", "<I1", "<I0", "<F0"}, tr.steps)
}

func TestGuardedHandlerOrderSplice(t *testing.T) {
	tr := &trace{}
	h := newHandler(t, &backend{tr: tr})

	require.NoError(t, h.UseInterceptors(tr.interceptor("A"), tr.interceptor("C")))
	require.NoError(t, h.UseInterceptorsAt(1, tr.interceptor("B")))

	_, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A>", "B>", "C>", "B", "<C", "<B", "<A"}, tr.steps)
}

func TestGuardShortCircuit(t *testing.T) {
	b := &backend{}
	var third atomic.Bool
	h := newHandler(t, b)

	require.NoError(t, h.UseGuards(
		func(*kernel.Context) bool { return true },
		func(*kernel.Context, any) bool { return false },
		func(*kernel.Context, any) (bool, error) { third.Store(true); return true, nil },
	))

	_, err := h.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, kernel.ErrForbidden)
	var fe *kernel.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Guard)
	assert.False(t, third.Load())
	assert.Zero(t, b.calls)
}

func TestGuardErrorPropagates(t *testing.T) {
	boom := errors.New("lookup failed")
	h := newHandler(t, &backend{})
	require.NoError(t, h.UseGuards(func(*kernel.Context, any) (bool, error) { return false, boom }))

	_, err := h.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, kernel.IsForbidden(err))
}

func TestAsyncGuard(t *testing.T) {
	h := newHandler(t, &backend{})
	require.NoError(t, h.UseGuards(func(*kernel.Context, any) *kernel.Future[bool] {
		return kernel.RunAsync(func() (bool, error) { return false, nil })
	}))

	_, err := h.Invoke(context.Background(), nil)
	assert.True(t, kernel.IsForbidden(err))
}

func TestForbiddenBypassesExceptionHandlers(t *testing.T) {
	var caught atomic.Bool
	h := newHandler(t, &backend{})
	require.NoError(t, h.UseGuards(func(*kernel.Context) bool { return false }))
	require.NoError(t, h.UseExceptionHandlers(kernel.TypeOf[*kernel.ForbiddenError](), func(*kernel.ExceptionContext) {
		caught.Store(true)
	}))

	_, err := h.Invoke(context.Background(), nil)
	assert.True(t, kernel.IsForbidden(err))
	assert.False(t, caught.Load())
}

func TestCacheInvalidation(t *testing.T) {
	h := newHandler(t, &backend{out: "v"})
	require.NoError(t, h.UseInterceptors(suffix("1")))

	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)

	before := h.SharedChain()
	assert.Same(t, before, h.SharedChain())

	require.NoError(t, h.UseInterceptors(suffix("2")))
	after := h.SharedChain()
	assert.NotSame(t, before, after)

	out, err = h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v21", out)
}

func TestPerTypeIsolation(t *testing.T) {
	h := newHandler(t, &backend{out: "v"}, kernel.WithTypeKey(kernel.RuntimeType))
	require.NoError(t, h.UseInterceptors(suffix("-shared")))

	require.NoError(t, h.UseTypeFilters(kernel.TypeOf[orderA](), suffix("-A")))
	shared := h.SharedChain()

	out, err := h.Invoke(context.Background(), orderA{})
	require.NoError(t, err)
	assert.Equal(t, "v-shared-A", out)

	out, err = h.Invoke(context.Background(), orderB{})
	require.NoError(t, err)
	assert.Equal(t, "v-shared", out)

	assert.Same(t, shared, h.SharedChain())
	assert.Same(t, shared, h.ChainFor(kernel.TypeOf[orderB]()))
	assert.NotSame(t, shared, h.ChainFor(kernel.TypeOf[orderA]()))
}

func TestTypeInterceptorsFromParentResolver(t *testing.T) {
	reg := kernel.NewRegistry()
	parent := kernel.NewTypeResolver(reg, "bus", nil)
	require.NoError(t, parent.UseInterceptors("order.created", suffix("-bus")))

	h := newHandler(t, &backend{out: "v"},
		kernel.WithTypeResolver(parent),
		kernel.WithTypeKey(func(any) any { return "order.created" }))
	require.NoError(t, h.UseTypeInterceptors("order.created", suffix("-local")))

	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v-local-bus", out)

	parent.Release("order.created")
	h.Invalidate()
	out, err = h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v-local", out)
}

func TestExceptionRoundTrip(t *testing.T) {
	raised := &conflictError{id: "42"}
	b := &backend{err: raised}
	h := newHandler(t, b)

	var seen *kernel.ExceptionContext
	var second atomic.Bool
	require.NoError(t, h.UseExceptionHandlers(kernel.TypeOf[*conflictError](),
		func(ec *kernel.ExceptionContext) (any, error) {
			seen = ec
			ec.MarkDone()
			return "V", nil
		},
		func(*kernel.ExceptionContext) { second.Store(true) },
	))

	ctx := kernel.NewContext(context.Background(), "raw")
	out, err := h.Handle(ctx, nil).Await()
	require.NoError(t, err)
	assert.Equal(t, "V", out)
	assert.False(t, second.Load())

	require.NotNil(t, seen)
	assert.True(t, seen.Destroyed())
	assert.Same(t, raised, seen.Error)
	assert.Equal(t, "raw", seen.Raw)
	assert.ErrorIs(t, ctx.Exception(), raised)
	assert.False(t, ctx.Destroyed())
}

func TestExceptionByName(t *testing.T) {
	h := newHandler(t, &backend{err: &conflictError{id: "1"}})
	require.NoError(t, h.UseExceptionHandlers("Conflict", func(err error) (any, error) {
		return "named:" + err.Error(), nil
	}))

	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "named:conflict on 1", out)
}

func TestExceptionFiltersWrapDispatch(t *testing.T) {
	h := newHandler(t, &backend{err: &conflictError{}})
	require.NoError(t, h.UseExceptionHandlers(kernel.TypeOf[*conflictError](), func(*kernel.ExceptionContext) (any, error) {
		return "handled", nil
	}))
	require.NoError(t, h.UseExceptionFilters(suffix("+filtered")))

	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "handled+filtered", out)
}

func TestUnhandledException(t *testing.T) {
	boom := errors.New("boom")
	h := newHandler(t, &backend{err: boom})

	_, err := h.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	out, err := h.SharedChain().Handle(kernel.NewContext(context.Background(), nil), nil)
	require.NoError(t, err)
	u, ok := kernel.AsUnhandled(out)
	require.True(t, ok)
	assert.ErrorIs(t, u, boom)
}

func TestAnyExceptionIsFallback(t *testing.T) {
	h := newHandler(t, &backend{err: &conflictError{id: "1"}})
	require.NoError(t, h.UseExceptionHandlers(kernel.AnyException, func(error) (any, error) { return "any", nil }))

	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "any", out)

	require.NoError(t, h.UseExceptionHandlers("Conflict", func(error) (any, error) { return "conflict", nil }))
	out, err = h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "conflict", out)
}

func TestExceptionMatchPolicy(t *testing.T) {
	wrapped := fmt.Errorf("saving order: %w", &conflictError{id: "7"})
	handler := func(*kernel.ExceptionContext) (any, error) { return "recovered", nil }

	exact := newHandler(t, &backend{err: wrapped})
	require.NoError(t, exact.UseExceptionHandlers(kernel.TypeOf[*conflictError](), handler))
	_, err := exact.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, wrapped)

	loose := newHandler(t, &backend{err: wrapped}, kernel.WithExceptionPolicy(kernel.MatchWrapped))
	require.NoError(t, loose.UseExceptionHandlers(kernel.TypeOf[*conflictError](), handler))
	out, err := loose.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
}

func TestWithoutCatch(t *testing.T) {
	boom := errors.New("boom")
	h := newHandler(t, &backend{err: boom}, kernel.WithoutCatch())
	out, err := h.SharedChain().Handle(kernel.NewContext(context.Background(), nil), nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, boom)
}

func TestLimit(t *testing.T) {
	b := &backend{out: "once"}
	h := newHandler(t, b, kernel.WithLimit(1))

	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "once", out)

	out, err = h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 1, b.calls)
}

func TestLimitIgnoresRejectedInvocations(t *testing.T) {
	b := &backend{out: "ok"}
	var allow atomic.Bool
	h := newHandler(t, b, kernel.WithLimit(1))
	require.NoError(t, h.UseGuards(func(*kernel.Context) bool { return allow.Load() }))

	_, err := h.Invoke(context.Background(), nil)
	assert.True(t, kernel.IsForbidden(err))

	allow.Store(true)
	out, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, b.calls)
}

func TestCompletion(t *testing.T) {
	b := &backend{}
	done := kernel.TokenFor("test", kernel.PurposeGuards, "done")
	h := newHandler(t, b, kernel.WithCompletion(func(ctx *kernel.Context) bool {
		_, ok := ctx.Get(done)
		return ok
	}))

	ctx := kernel.NewContext(context.Background(), nil)
	ctx.SetValue(done, true)
	out, err := h.Handle(ctx, "x").Await()
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Zero(t, b.calls)
}

func TestMissingConfiguration(t *testing.T) {
	bare := kernel.NewGuardedHandler("bare", &backend{})
	defer bare.Destroy()

	assert.NoError(t, bare.UseGuards())
	assert.ErrorIs(t, bare.UseGuards(func(*kernel.Context) bool { return true }), kernel.ErrMissingConfiguration)
	assert.ErrorIs(t, bare.UseTypeFilters("k", suffix("x")), kernel.ErrMissingConfiguration)
	assert.ErrorIs(t, bare.UseExceptionHandlers("k", func(error) (any, error) { return nil, nil }), kernel.ErrMissingConfiguration)

	partial := kernel.NewGuardedHandler("partial", &backend{},
		kernel.WithRegistry(kernel.NewRegistry()),
		kernel.WithTokens(kernel.Tokens{Interceptors: kernel.TokenFor("partial", kernel.PurposeInterceptors)}))
	defer partial.Destroy()

	assert.NoError(t, partial.UseInterceptors(suffix("x")))
	assert.ErrorIs(t, partial.UseFilters(suffix("x")), kernel.ErrMissingConfiguration)
	assert.ErrorIs(t, partial.UseInterceptors(42), kernel.ErrInvalidModifier)
}

func TestSharedRegistryAcrossHandlers(t *testing.T) {
	reg := kernel.NewRegistry()
	tokens := kernel.ScopedTokens("module")
	a := kernel.NewGuardedHandler("a", &backend{out: "a"}, kernel.WithRegistry(reg), kernel.WithTokens(tokens))
	b := kernel.NewGuardedHandler("b", &backend{out: "b"}, kernel.WithRegistry(reg), kernel.WithTokens(tokens))
	defer a.Destroy()
	defer b.Destroy()

	require.NoError(t, a.UseInterceptors(suffix("!")))
	b.Invalidate()

	out, err := b.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "b!", out)
}

func TestDestroy(t *testing.T) {
	reg := &countingRegistry{MemoryRegistry: kernel.NewRegistry()}
	h := kernel.NewGuardedHandler("destroy", &backend{}, kernel.WithRegistry(reg))

	require.NoError(t, h.UseGuards(func(*kernel.Context) bool { return true }))
	require.NoError(t, h.UseInterceptors(suffix("x"), suffix("y")))
	assert.Equal(t, 2, reg.Len())

	h.Destroy()
	h.Destroy()

	assert.True(t, h.Destroyed())
	assert.EqualValues(t, 2, reg.unregistered.Load())
	assert.Zero(t, reg.Len())
	assert.Nil(t, h.SharedChain())

	f := h.Handle(nil, nil)
	_, err := f.Await()
	assert.True(t, f.Cancelled())
	assert.ErrorIs(t, err, kernel.ErrCancelled)
	assert.ErrorIs(t, h.UseGuards(func(*kernel.Context) bool { return true }), kernel.ErrDestroyed)
}

func TestDestroyCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	observed := make(chan error, 1)
	slow := kernel.HandlerFunc(func(ctx *kernel.Context, _ any) (any, error) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return "late", nil
	})
	h := kernel.NewGuardedHandler("slow", slow, kernel.WithRegistry(kernel.NewRegistry()))

	f := h.Handle(nil, nil)
	<-started
	h.Destroy()

	out, err := f.Await()
	assert.Nil(t, out)
	assert.True(t, f.Cancelled())
	assert.ErrorIs(t, err, kernel.ErrCancelled)

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("backend never observed cancellation")
	}
}

func TestCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	h := newHandler(t, kernel.HandlerFunc(func(c *kernel.Context, _ any) (any, error) {
		close(started)
		<-c.Done()
		return nil, c.Err()
	}))

	f := h.Handle(kernel.NewContext(ctx, nil), nil)
	<-started
	cancel()

	_, err := f.Await()
	assert.True(t, kernel.IsCancelled(err))
}

func TestPanicRejectsFuture(t *testing.T) {
	t.Run("guard", func(t *testing.T) {
		h := newHandler(t, &backend{})
		require.NoError(t, h.UseGuards(func(*kernel.Context) bool { panic("guard boom") }))

		_, err := h.Invoke(context.Background(), nil)
		assert.ErrorIs(t, err, kernel.ErrPanic)
		assert.Contains(t, err.Error(), "guard boom")
	})

	t.Run("backend", func(t *testing.T) {
		boom := errors.New("backend boom")
		h := newHandler(t, kernel.HandlerFunc(func(*kernel.Context, any) (any, error) { panic(boom) }))

		f := h.Handle(nil, nil)
		_, err := f.Await()
		assert.False(t, f.Cancelled())
		var pe *kernel.PanicError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, kernel.ErrPanic)
		assert.ErrorIs(t, err, boom)
		assert.NotEmpty(t, pe.StackTrace())
		assert.Equal(t, "Panic", pe.ExceptionName())

		// 处理器仍可继续使用
		assert.False(t, h.Destroyed())
		_, err = h.Invoke(context.Background(), nil)
		assert.ErrorIs(t, err, kernel.ErrPanic)
	})
}

func TestRegisterRacingDestroy(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := kernel.NewGuardedHandler("race", &backend{}, kernel.WithRegistry(kernel.NewRegistry()))
		errs := make(chan error, 20)
		start := make(chan struct{})
		for j := 0; j < cap(errs); j++ {
			go func() {
				<-start
				errs <- h.UseInterceptors(suffix("x"))
			}()
		}
		close(start)
		h.Destroy()
		for j := 0; j < cap(errs); j++ {
			if err := <-errs; err != nil {
				require.ErrorIs(t, err, kernel.ErrDestroyed)
			}
		}
	}
}
