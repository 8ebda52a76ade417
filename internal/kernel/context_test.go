package kernel_test

import (
	"context"
	"testing"
	"time"

	"gnest/internal/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func TestContextValues(t *testing.T) {
	parent := context.WithValue(context.Background(), ctxKey("trace"), "t-1")
	ctx := kernel.NewContext(parent, nil)
	user := kernel.TokenFor("auth", kernel.PurposeGuards, "user")

	ctx.SetValue(user, "alice")
	v, ok := ctx.Get(user)
	require.True(t, ok)
	assert.Equal(t, "alice", v)
	assert.Equal(t, "alice", ctx.Value(user))
	assert.Equal(t, "t-1", ctx.Value(ctxKey("trace")))
	assert.NotEmpty(t, ctx.ID)
}

func TestContextDeriveSharesState(t *testing.T) {
	ctx := kernel.NewContext(context.Background(), "raw")
	deadline, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	view := ctx.Derive(deadline)
	tok := kernel.TokenFor("x", kernel.PurposeFilters)
	view.SetValue(tok, 1)

	v, ok := ctx.Get(tok)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, ctx.ID, view.ID)
	assert.Equal(t, "raw", view.Raw)

	_, has := view.Deadline()
	assert.True(t, has)
	_, has = ctx.Deadline()
	assert.False(t, has)
}

func TestContextDestroy(t *testing.T) {
	ctx := kernel.NewContext(context.Background(), nil)
	var order []int
	ctx.OnDestroy(func() { order = append(order, 1) })
	ctx.Derive(context.Background()).OnDestroy(func() { order = append(order, 2) })

	ctx.Destroy()
	ctx.Destroy()
	assert.Equal(t, []int{2, 1}, order)
	assert.True(t, ctx.Destroyed())

	ctx.OnDestroy(func() { order = append(order, 3) })
	assert.Equal(t, []int{2, 1, 3}, order)
}

func TestExceptionContextFallsBackToOriginal(t *testing.T) {
	original := kernel.NewContext(context.Background(), "raw")
	tok := kernel.TokenFor("req", kernel.PurposeGuards, "user")
	original.SetValue(tok, "bob")

	ec := kernel.NewExceptionContext(original, assert.AnError)
	v, ok := ec.Get(tok)
	require.True(t, ok)
	assert.Equal(t, "bob", v)
	assert.Equal(t, "raw", ec.Raw)

	ec.Destroy()
	assert.True(t, ec.Destroyed())
	assert.False(t, original.Destroyed())
}
