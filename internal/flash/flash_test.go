package flash

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

func TestMemoryStore_PopOnce(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 1, model.Notice{URL: "https://wa.me/79991234567?text=hi", Message: "hi"}))

	n, err := s.Pop(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "hi", n.Message)

	n, err = s.Pop(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, n, "second pop must be empty")
}

func TestMemoryStore_ScopedByUser(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 1, model.Notice{Message: "first"}))

	n, err := s.Pop(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = s.Pop(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "first", n.Message)
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 1, model.Notice{Message: "old"}))
	require.NoError(t, s.Put(ctx, 1, model.Notice{Message: "new"}))

	n, err := s.Pop(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "new", n.Message)
}

func TestMemoryStore_Expired(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 1, model.Notice{Message: "stale"}))
	now = now.Add(2 * time.Minute)

	n, err := s.Pop(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, 1, model.Notice{Message: "stale"}))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.Put(ctx, 2, model.Notice{Message: "fresh"}))
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, s.Sweep())

	n, err := s.Pop(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "fresh", n.Message)
}

func TestMemoryStore_RunSweeperStopsOnCancel(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
