package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/infrastructure/cache"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
)

// CachedJobServiceConfig holds configuration for CachedJobService.
type CachedJobServiceConfig struct {
	// CacheTTL is the TTL for cached job records.
	CacheTTL time.Duration
}

// DefaultCachedJobServiceConfig returns the default configuration.
func DefaultCachedJobServiceConfig() CachedJobServiceConfig {
	return CachedJobServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// CachedJobService wraps JobService with caching capabilities.
type CachedJobService struct {
	delegate JobService
	cache    cache.JobCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
}

// Compile-time verification that CachedJobService implements JobService.
var _ JobService = (*CachedJobService)(nil)

// NewCachedJobService creates a new CachedJobService wrapping the provided JobService.
func NewCachedJobService(
	delegate JobService,
	jobCache cache.JobCache,
	cfg CachedJobServiceConfig,
) *CachedJobService {
	return &CachedJobService{
		delegate: delegate,
		cache:    jobCache,
		cacheTTL: cfg.CacheTTL,
	}
}

// SubmitJob delegates to the underlying service.
// The new job is not cached; it changes as soon as a worker picks it up.
func (s *CachedJobService) SubmitJob(ctx context.Context, input SubmitJobInput) (*model.TranscodeJob, error) {
	return s.delegate.SubmitJob(ctx, input)
}

// GetJob retrieves a job with caching.
// Uses singleflight to prevent cache stampede on concurrent polls of the same job.
func (s *CachedJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error) {
	key := jobID.String()
	result, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return s.getJobWithCache(ctx, jobID)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	return result.(*model.TranscodeJob), nil
}

// GetResult derives the output contract from the cached job.
func (s *CachedJobService) GetResult(ctx context.Context, jobID uuid.UUID) (*model.JobResult, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return resultOf(job)
}

// getJobWithCache implements the cache-aside pattern.
func (s *CachedJobService) getJobWithCache(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error) {
	job, err := s.cache.Get(ctx, jobID)
	if err != nil {
		slog.Warn("cache get failed, falling back to database",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
	}

	if job != nil {
		return job, nil
	}

	job, err = s.delegate.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, job, s.cacheTTL); err != nil {
		slog.Warn("failed to cache job",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
	}

	return job, nil
}

// InvalidateCache removes a job from the cache.
func (s *CachedJobService) InvalidateCache(ctx context.Context, jobID uuid.UUID) error {
	return s.cache.Delete(ctx, jobID)
}
