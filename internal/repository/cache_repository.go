package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
)

const (
	// DefaultCacheNamespace prefixes every key written by this service.
	DefaultCacheNamespace = "visitor-attendance"

	scanBatchSize = 200
)

// CacheRepository stores serialized analytics reports in Redis. Keys are
// namespaced so several deployments can share one Redis database.
type CacheRepository struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewCacheRepository constructs a cache repository using DefaultCacheNamespace.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, namespace: DefaultCacheNamespace, logger: logger}
}

// WithNamespace returns a copy writing under a different key namespace.
func (r *CacheRepository) WithNamespace(namespace string) *CacheRepository {
	clone := *r
	clone.namespace = namespace
	return &clone
}

// Key returns the fully qualified Redis key.
func (r *CacheRepository) Key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

// Get unmarshals the cached report into dest. Entries that no longer decode
// into dest are dropped and reported as a miss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	full := r.Key(key)

	raw, err := r.client.Get(ctx, full).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", full, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", full), zap.Error(err))
		if delErr := r.client.Unlink(ctx, full).Err(); delErr != nil {
			r.logger.Warn("unlink cache entry", zap.String("key", full), zap.Error(delErr))
		}
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	full := r.Key(key)

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", full, err)
	}
	if err := r.client.Set(ctx, full, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", full, err)
	}
	return nil
}

// DeleteByPattern unlinks every key matching pattern inside the namespace and
// returns how many were removed.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	full := r.Key(pattern)

	var (
		removed int64
		batch   = make([]string, 0, scanBatchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink %d keys: %w", len(batch), err)
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, full, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan pattern %s: %w", full, err)
	}
	return removed, flush()
}

// Ping checks connectivity for readiness checks.
func (r *CacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis client not configured")
	}
	return r.client.Ping(ctx).Err()
}
