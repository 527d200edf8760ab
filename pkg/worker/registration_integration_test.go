//go:build integration

package worker

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/shellcache/pkg/cache"
	"github.com/Sternrassler/shellcache/pkg/registry"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) *redis.Client {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start Redis container")

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})
	return client
}

func TestRegistration_Integration_RedisReplicas(t *testing.T) {
	h := newHarness(t)
	rdb := setupRedis(t)
	ctx := context.Background()

	store := cache.NewRedisStore(rdb)
	_, err := store.Open(ctx, "v1")
	require.NoError(t, err)
	_, err = store.Open(ctx, "v2")
	require.NoError(t, err)

	replicaA := NewRegistration(store, registry.NewRedisRegistry(rdb, zerolog.Nop()), h.client, zerolog.Nop())
	w, err := replicaA.Register(ctx, DefaultConfig("v3"))
	require.NoError(t, err)
	assert.Equal(t, StateActivated, w.State())

	names, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, names)

	// A second replica adopts the installed version without fetching.
	h.origin.Reset()
	replicaB := NewRegistration(store, registry.NewRedisRegistry(rdb, zerolog.Nop()), h.client, zerolog.Nop())
	adopted, err := replicaB.Register(ctx, DefaultConfig("v3"))
	require.NoError(t, err)
	assert.Equal(t, StateActivated, adopted.State())
	assert.Equal(t, 0, h.origin.RequestCount())

	first := serve(replicaA, getRequest("/logo.png", DestinationImage))
	assert.Equal(t, 200, first.Code)
	second := serve(replicaB, getRequest("/logo.png", DestinationImage))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, h.origin.RequestCountFor("/logo.png"), "replicas share stored entries")
}
