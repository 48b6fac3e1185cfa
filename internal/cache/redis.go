package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quantfabric/calcgrid/internal/marketdata"
)

// RedisConfig configures the Redis plan cache tier.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`

	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultRedisConfig returns production-ready Redis settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "calcgrid:plan:",
		TTL:          24 * time.Hour,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Redis is a shared plan cache backed by a Redis server. Plans are stored as
// JSON under prefixed requirement-hash keys with a TTL.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

var _ marketdata.PlanCache = (*Redis)(nil)

// NewRedis creates a Redis plan cache and verifies connectivity.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient wraps an existing client, for tests and custom setups.
func NewRedisWithClient(client redis.UniversalClient, cfg RedisConfig) *Redis {
	return &Redis{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		logger:    zerolog.Nop(),
	}
}

// SetLogger attaches a logger for cache errors.
func (r *Redis) SetLogger(logger zerolog.Logger) { r.logger = logger }

// Get implements marketdata.PlanCache. Redis errors degrade to a miss so a
// cache outage never fails a run.
func (r *Redis) Get(ctx context.Context, key string) (*marketdata.Plan, bool) {
	raw, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.recordError()
			r.logger.Warn().Err(err).Str("key", key).Msg("plan cache get failed")
		}
		r.recordMiss()
		return nil, false
	}
	var plan marketdata.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		r.recordError()
		r.logger.Warn().Err(err).Str("key", key).Msg("plan cache entry corrupt")
		r.recordMiss()
		return nil, false
	}
	r.recordHit()
	return &plan, true
}

// Put implements marketdata.PlanCache.
func (r *Redis) Put(ctx context.Context, key string, plan *marketdata.Plan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		r.recordError()
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, raw, r.ttl).Err(); err != nil {
		r.recordError()
		return fmt.Errorf("store plan: %w", err)
	}
	r.mu.Lock()
	r.stats.Sets++
	r.mu.Unlock()
	return nil
}

// Flush removes every cached plan under the key prefix. Call after changing
// the market data function configuration.
func (r *Redis) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan plans: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete plans: %w", err)
	}
	return nil
}

// Stats returns a copy of the performance counters.
func (r *Redis) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) recordHit()  { r.mu.Lock(); r.stats.Hits++; r.mu.Unlock() }
func (r *Redis) recordMiss() { r.mu.Lock(); r.stats.Misses++; r.mu.Unlock() }
func (r *Redis) recordError() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}
