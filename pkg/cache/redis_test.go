package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-memory Redis server for unit tests.
// Integration tests use testcontainers-go with a real Redis instance.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
	})

	return client, mr
}

func TestRedisStore(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		client, _ := setupTestRedis(t)
		return NewRedisStore(client)
	})
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil)
}

func TestRedisStore_Open_EmptyName(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client)

	if _, err := store.Open(context.Background(), ""); err == nil {
		t.Error("Open with empty name should return error")
	}
}

func TestRedisStore_Layout(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	bucket, err := store.Open(ctx, "shop-v3")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := bucket.Put(ctx, Key{Method: "GET", Path: "/index.html"}, &Entry{Data: []byte("<html>")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	members, err := mr.ZMembers(RedisKeyBuckets)
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != "shop-v3" {
		t.Errorf("bucket index = %v, want [shop-v3]", members)
	}

	fields, err := mr.HKeys(RedisKeyBucketPrefix + "shop-v3")
	if err != nil {
		t.Fatalf("HKeys failed: %v", err)
	}
	if len(fields) != 1 || fields[0] != "GET /index.html" {
		t.Errorf("bucket fields = %v, want [GET /index.html]", fields)
	}
}

func TestRedisStore_Match_InvalidEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	bucket, _ := store.Open(ctx, "shop-v3")
	mr.HSet(RedisKeyBucketPrefix+"shop-v3", "GET /broken.js", "{not json")

	_, err := bucket.Match(ctx, Key{Method: "GET", Path: "/broken.js"})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestRedisStore_ConnectionError(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	mr.Close()

	if _, err := store.Keys(ctx); err == nil {
		t.Error("Keys should fail when Redis is down")
	}
	if _, err := store.Delete(ctx, "shop-v1"); err == nil {
		t.Error("Delete should fail when Redis is down")
	}
}
