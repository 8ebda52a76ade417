package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	re "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(re.NewClient(&re.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestIncrWindow(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrWindow(ctx, "rl:ip", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, time.Minute, mr.TTL("rl:ip"))

	mr.FastForward(time.Minute)
	n, err := c.IncrWindow(ctx, "rl:ip", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Get(context.Background(), "missing")
	assert.True(t, IsNil(err))

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Second))
	ok, err := c.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
