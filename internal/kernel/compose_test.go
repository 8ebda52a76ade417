package kernel_test

import (
	"context"
	"testing"

	"gnest/internal/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	steps []string
}

func (tr *trace) interceptor(name string) kernel.InterceptorFunc {
	return func(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
		tr.steps = append(tr.steps, name+">")
		out, err := next.Handle(ctx, in)
		tr.steps = append(tr.steps, "<"+name)
		return out, err
	}
}

type backend struct {
	calls int
	out   any
	err   error
	tr    *trace
}

func (b *backend) Handle(_ *kernel.Context, in any) (any, error) {
	b.calls++
	if b.tr != nil {
		b.tr.steps = append(b.tr.steps, "B")
	}
	if b.out != nil {
		return b.out, b.err
	}
	return in, b.err
}

func TestComposeFoldOrder(t *testing.T) {
	tr := &trace{}
	b := &backend{tr: tr}
	chain := kernel.Compose(
		[]kernel.Filter{tr.interceptor("F0"), tr.interceptor("F1")},
		[]kernel.Interceptor{tr.interceptor("I0"), tr.interceptor("I1")},
		b,
	)

	out, err := chain.Handle(kernel.NewContext(context.Background(), nil), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.Equal(t, []string{"F0>", "F1>", "I0>", "I1>", "B", "<I1", "<I0", "<F1", "<F0"}, tr.steps)
}

func TestComposeEmptyReturnsBackend(t *testing.T) {
	b := &backend{}
	assert.Same(t, b, kernel.Compose(nil, nil, b))
	assert.Same(t, b, kernel.Chain(b))
}

func TestComposeShortCircuit(t *testing.T) {
	b := &backend{}
	skip := kernel.InterceptorFunc(func(*kernel.Context, any, kernel.Handler) (any, error) {
		return "cached", nil
	})
	chain := kernel.Compose(nil, []kernel.Interceptor{skip}, b)

	out, err := chain.Handle(kernel.NewContext(context.Background(), nil), "x")
	require.NoError(t, err)
	assert.Equal(t, "cached", out)
	assert.Zero(t, b.calls)
}

func TestNormalizeGuards(t *testing.T) {
	ctx := kernel.NewContext(context.Background(), nil)
	shapes := map[string]any{
		"func-bool-error": func(*kernel.Context, any) (bool, error) { return false, nil },
		"func-bool":       func(*kernel.Context, any) bool { return false },
		"func-ctx":        func(*kernel.Context) bool { return false },
		"func-future": func(*kernel.Context, any) *kernel.Future[bool] {
			return kernel.CompletedFuture(false, nil)
		},
		"guard-func": kernel.GuardFunc(func(*kernel.Context, any) (bool, error) { return false, nil }),
	}
	for name, shape := range shapes {
		t.Run(name, func(t *testing.T) {
			g, err := kernel.AsGuard(shape)
			require.NoError(t, err)
			ok, err := g.CanActivate(ctx, nil)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	_, err := kernel.AsGuard(42)
	assert.ErrorIs(t, err, kernel.ErrInvalidModifier)
}

func TestNormalizeInterceptors(t *testing.T) {
	ctx := kernel.NewContext(context.Background(), nil)
	b := &backend{out: "out"}

	withNext := func(_ *kernel.Context, _ any, next func() (any, error)) (any, error) {
		out, err := next()
		return out.(string) + "!", err
	}
	i, err := kernel.AsInterceptor(withNext)
	require.NoError(t, err)
	out, err := kernel.Chain(b, i).Handle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "out!", out)

	f, err := kernel.AsFilter(func(_ *kernel.Context, in any, next kernel.Handler) (any, error) {
		return next.Handle(ctx, in)
	})
	require.NoError(t, err)
	out, err = kernel.Compose([]kernel.Filter{f}, nil, b).Handle(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "out", out)

	_, err = kernel.AsFilter("nope")
	assert.ErrorIs(t, err, kernel.ErrInvalidModifier)
}

func TestAsHandler(t *testing.T) {
	h, err := kernel.AsHandler(func(in any) (any, error) { return in, nil })
	require.NoError(t, err)
	out, err := h.Handle(nil, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	_, err = kernel.AsHandler(struct{}{})
	assert.ErrorIs(t, err, kernel.ErrInvalidModifier)
}
