package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
)

type stubCacheRepo struct {
	getErr    error
	setErr    error
	deleteErr error
	setTTL    time.Duration
	patterns  []string
}

func (s *stubCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	*(dest.(*string)) = "cached"
	return nil
}

func (s *stubCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.setTTL = ttl
	return s.setErr
}

func (s *stubCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	s.patterns = append(s.patterns, pattern)
	return 3, s.deleteErr
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	metrics := NewMetricsService()
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, metrics, 0, nil, true)

	var dest string
	assert.True(t, svc.Get(context.Background(), "k", &dest))
	assert.Equal(t, "cached", dest)

	repo.getErr = appErrors.ErrCacheMiss
	assert.False(t, svc.Get(context.Background(), "k", &dest))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))

	svc.Set(context.Background(), "k", "v", 0)
	assert.Equal(t, 30*time.Second, repo.setTTL)
}

func TestCacheServiceSoftFails(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := &stubCacheRepo{
		getErr:    errors.New("connection refused"),
		setErr:    errors.New("connection refused"),
		deleteErr: errors.New("connection refused"),
	}
	svc := NewCacheService(repo, nil, time.Minute, zap.New(core), true)

	var dest string
	assert.False(t, svc.Get(context.Background(), "k", &dest))
	svc.Set(context.Background(), "k", "v", time.Second)
	svc.InvalidateAvailability(context.Background())

	assert.Equal(t, []string{"schedules:availability:*"}, repo.patterns)
	assert.Equal(t, 3, logs.Len())
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	var dest string
	assert.False(t, svc.Get(context.Background(), "k", &dest))
	svc.InvalidateAvailability(context.Background())
	assert.Empty(t, repo.patterns)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}
