package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// CacheRepository abstracts the JSON payload store.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const (
	defaultCacheTTL  = 10 * time.Minute
	cacheBackoffTime = 30 * time.Second
)

// CacheService fronts the analytics cache. A backend error turns the cache off
// for a short backoff window; callers always fall through to the database.
type CacheService struct {
	store   CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool

	mu        sync.Mutex
	downUntil time.Time
	now       func() time.Time
}

func NewCacheService(store CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled, now: time.Now}
}

// Enabled reports whether a cache backend is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

func (s *CacheService) available() bool {
	if !s.Enabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.downUntil)
}

func (s *CacheService) backOff(op, key string, err error) {
	s.mu.Lock()
	s.downUntil = s.now().Add(cacheBackoffTime)
	s.mu.Unlock()
	s.logger.Warn("cache backend failed, bypassing", zap.String("op", op), zap.String("key", key),
		zap.Duration("backoff", cacheBackoffTime), zap.Error(err))
}

// Get decodes key into dest. Misses and backend failures both report false;
// only the latter returns an error.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.available() {
		return false, nil
	}
	start := time.Now()
	err := s.store.Get(ctx, key, dest)
	switch {
	case err == nil:
		s.metrics.RecordCacheOperation(true, time.Since(start))
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		s.metrics.RecordCacheOperation(false, time.Since(start))
		return false, nil
	default:
		s.backOff("get", key, err)
		return false, err
	}
}

// Set stores value under key; ttl <= 0 selects the configured default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.available() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		s.backOff("set", key, err)
		return err
	}
	s.metrics.ObserveCacheWrite(time.Since(start))
	return nil
}

// Remember fills dest from the cache, or through load on a miss and then caches it.
// Cache errors never reach the caller; load errors always do.
func (s *CacheService) Remember(ctx context.Context, key string, dest interface{}, load func(ctx context.Context) error) (bool, error) {
	if hit, _ := s.Get(ctx, key, dest); hit {
		return true, nil
	}
	if err := load(ctx); err != nil {
		return false, err
	}
	_ = s.Set(ctx, key, dest, 0)
	return false, nil
}

// Invalidate drops every key matching pattern. It runs even during a backoff
// window so stale aggregates cannot survive a backend recovery.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.store.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}
