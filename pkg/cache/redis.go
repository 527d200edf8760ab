package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys for bucket storage.
const (
	// RedisKeyBuckets is a sorted set of bucket names scored by creation time.
	RedisKeyBuckets = "shellcache:buckets"

	// RedisKeyBucketPrefix prefixes the hash holding a bucket's entries.
	RedisKeyBucketPrefix = "shellcache:bucket:"
)

// putIfIndexed writes an entry only while its bucket is still listed in the
// index, so a Put racing with a bucket deletion cannot leave an orphaned hash.
var putIfIndexed = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) then
	redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
	return 1
end
return 0
`)

// RedisStore keeps buckets in Redis.
// Redis serialises commands, so concurrent handlers need no client-side locking.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a bucket store with Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

func bucketKey(name string) string {
	return RedisKeyBucketPrefix + name
}

// Open returns the named bucket, creating its index entry if needed.
func (s *RedisStore) Open(ctx context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	err := s.redis.ZAddNX(ctx, RedisKeyBuckets, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: name,
	}).Err()
	if err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("redis zadd: %w", err)
	}

	return &redisBucket{redis: s.redis, name: name}, nil
}

// Has reports whether the named bucket is indexed.
func (s *RedisStore) Has(ctx context.Context, name string) (bool, error) {
	err := s.redis.ZScore(ctx, RedisKeyBuckets, name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return false, fmt.Errorf("redis zscore: %w", err)
	}
	return true, nil
}

// Keys lists bucket names in creation order.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	names, err := s.redis.ZRange(ctx, RedisKeyBuckets, 0, -1).Result()
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return names, nil
}

// Delete removes the bucket index entry and its hash atomically.
func (s *RedisStore) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, RedisKeyBuckets, name)
		pipe.Del(ctx, bucketKey(name))
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis delete bucket %q: %w", name, err)
	}
	return removed.Val() > 0, nil
}

type redisBucket struct {
	redis *redis.Client
	name  string
}

func (b *redisBucket) Name() string { return b.name }

// Match retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (b *redisBucket) Match(ctx context.Context, key Key) (*Entry, error) {
	data, err := b.redis.HGet(ctx, bucketKey(b.name), key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Put stores an entry, overwriting any previous one for the same key.
func (b *redisBucket) Put(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	stored, err := putIfIndexed.Run(ctx, b.redis,
		[]string{RedisKeyBuckets, bucketKey(b.name)},
		b.name, key.String(), data,
	).Int()
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis put: %w", err)
	}
	if stored == 0 {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("%w: %s", ErrBucketNotFound, b.name)
	}

	recordPut(entry)
	return nil
}

// Delete removes a single entry.
func (b *redisBucket) Delete(ctx context.Context, key Key) (bool, error) {
	n, err := b.redis.HDel(ctx, bucketKey(b.name), key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("redis hdel: %w", err)
	}
	return n > 0, nil
}

// Keys lists the key strings of every entry in the bucket.
func (b *redisBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.redis.HKeys(ctx, bucketKey(b.name)).Result()
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
