package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Registry loads and stores the registration record.
type Registry interface {
	// Get returns the current record. A zero record is returned when
	// nothing has been stored yet.
	Get(ctx context.Context) (*Record, error)

	// Save replaces the current record.
	Save(ctx context.Context, rec *Record) error
}

// RedisRegistry keeps the registration record in Redis.
type RedisRegistry struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisRegistry creates a new Redis-backed registry.
func NewRedisRegistry(redisClient *redis.Client, logger zerolog.Logger) *RedisRegistry {
	return &RedisRegistry{
		redis:  redisClient,
		logger: logger,
	}
}

// Get retrieves the registration record from Redis.
func (r *RedisRegistry) Get(ctx context.Context) (*Record, error) {
	values, err := r.redis.MGet(ctx, RedisKeyActiveVersion, RedisKeyState, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}

	rec := &Record{}
	if v, ok := values[0].(string); ok {
		rec.ActiveVersion = v
	}
	if v, ok := values[1].(string); ok {
		rec.State = v
	}
	if v, ok := values[2].(string); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &rec.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	if !rec.HasActive() {
		r.logger.Debug().Msg("No registration state in Redis")
	}

	return rec, nil
}

// Save stores the registration record in Redis atomically.
func (r *RedisRegistry) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.LastUpdate.IsZero() {
		rec.LastUpdate = time.Now()
	}

	lastUpdateJSON, err := json.Marshal(rec.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RedisKeyActiveVersion, rec.ActiveVersion, 0)
		pipe.Set(ctx, RedisKeyState, rec.State, 0)
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store registration in redis: %w", err)
	}

	r.logger.Info().
		Str("active_version", rec.ActiveVersion).
		Str("state", rec.State).
		Time("last_update", rec.LastUpdate).
		Msg("Registration state updated")

	return nil
}

// MemoryRegistry keeps the registration record in process memory.
type MemoryRegistry struct {
	mu  sync.RWMutex
	rec Record
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// Get returns a copy of the current record.
func (m *MemoryRegistry) Get(_ context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec := m.rec
	return &rec, nil
}

// Save replaces the current record.
func (m *MemoryRegistry) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = *rec
	if m.rec.LastUpdate.IsZero() {
		m.rec.LastUpdate = time.Now()
	}
	return nil
}
