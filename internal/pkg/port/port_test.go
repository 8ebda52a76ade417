package port

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAvailablePortSkipsBusy(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	_, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	busy, _ := strconv.Atoi(portStr)

	got, err := FindAvailablePort(busy, 20)
	require.NoError(t, err)
	assert.NotEqual(t, busy, got)
	assert.Greater(t, got, busy)
}
