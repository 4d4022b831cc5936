//go:build integration

package flash

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

func setupRedisContainer(t *testing.T, ctx context.Context) (*RedisStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}

	return NewRedisStore(client, time.Minute), cleanup
}

func TestIntegration_RedisStorePopOnce(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupRedisContainer(t, ctx)
	defer cleanup()

	n, err := store.Pop(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, n)

	want := model.Notice{URL: "https://wa.me/79991234567?text=%D0%9F", Message: "П"}
	require.NoError(t, store.Put(ctx, 42, want))

	n, err = store.Pop(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, want, *n)

	n, err = store.Pop(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, n)
}
