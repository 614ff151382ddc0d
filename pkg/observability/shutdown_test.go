package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsFuncsInOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, io.Discard), nil, 0)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, io.Discard), &http.Server{}, 0)
	boom := errors.New("boom")
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return boom })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestShutdownManager_WaitForShutdownOnContext(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, io.Discard), nil, 0)
	called := false
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, called)
}
