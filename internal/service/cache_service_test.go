package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingCacheRepo struct {
	stubCacheRepo
	getErr error
	ttls   []time.Duration
}

func (f *failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	return f.stubCacheRepo.Get(ctx, key, dest)
}

func (f *failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.ttls = append(f.ttls, ttl)
	return f.stubCacheRepo.Set(ctx, key, value, ttl)
}

func TestCacheServiceHitMissAndMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetricsService()
	repo := &failingCacheRepo{}
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)

	var dest map[string]int
	hit, err := svc.Get(ctx, "analytics:report:k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "analytics:report:k", map[string]int{"total_entries": 3}, 0))
	assert.Equal(t, []time.Duration{time.Minute}, repo.ttls)

	hit, err = svc.Get(ctx, "analytics:report:k", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, dest["total_entries"])

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestCacheServiceBackendErrorIsMiss(t *testing.T) {
	svc := NewCacheService(&failingCacheRepo{getErr: errors.New("connection reset")}, nil, time.Minute, nil, true)
	var dest map[string]int
	hit, err := svc.Get(context.Background(), "k", &dest)
	assert.False(t, hit)
	assert.EqualError(t, err, "connection reset")
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &failingCacheRepo{}
	svc := NewCacheService(repo, nil, 0, nil, false)
	assert.False(t, svc.Enabled())

	require.NoError(t, svc.Set(context.Background(), "k", 1, time.Second))
	require.NoError(t, svc.Invalidate(context.Background(), "analytics:*"))
	assert.Empty(t, repo.ttls)
	assert.Empty(t, repo.deleted)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := &failingCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	require.NoError(t, svc.Set(context.Background(), "analytics:report:a", 1, 0))
	require.NoError(t, svc.Invalidate(context.Background(), "analytics:report:*"))
	assert.Equal(t, []string{"analytics:report:*"}, repo.deleted)
}
