package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/infrastructure/cache"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts before marking as failed.
	DefaultMaxRetries = 3

	contentTypeManifest = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/mp2t"
	contentTypeJPEG     = "image/jpeg"
)

// TranscodeServiceConfig holds configuration for TranscodeService.
type TranscodeServiceConfig struct {
	// MaxRetries is the maximum number of deliveries before a job is marked failed.
	MaxRetries int
	// JobTimeout bounds a single pipeline run. Zero disables the limit.
	JobTimeout time.Duration
}

// DefaultTranscodeServiceConfig returns the default configuration.
func DefaultTranscodeServiceConfig() TranscodeServiceConfig {
	return TranscodeServiceConfig{
		MaxRetries: DefaultMaxRetries,
		JobTimeout: 2 * time.Hour,
	}
}

// TranscodeService defines the interface for job execution on workers.
type TranscodeService interface {
	// ProcessTask handles a transcoding task from the message queue.
	// Returns nil once the job is finalized and persisted, or when there is
	// nothing left to do. Returns error for failures that should trigger a retry,
	// and the context error when interrupted by shutdown.
	ProcessTask(ctx context.Context, task repository.TranscodeTask) error
}

type transcodeService struct {
	repo     repository.JobRepository
	storage  repository.ObjectStorage
	pipeline *Pipeline
	cache    cache.JobCache

	maxRetries int
	jobTimeout time.Duration
}

// NewTranscodeService creates a new TranscodeService instance.
// jobCache may be nil when no status cache is deployed.
func NewTranscodeService(
	repo repository.JobRepository,
	storage repository.ObjectStorage,
	pipeline *Pipeline,
	jobCache cache.JobCache,
	cfg TranscodeServiceConfig,
) TranscodeService {
	return &transcodeService{
		repo:       repo,
		storage:    storage,
		pipeline:   pipeline,
		cache:      jobCache,
		maxRetries: cfg.MaxRetries,
		jobTimeout: cfg.JobTimeout,
	}
}

// ProcessTask runs the pipeline for the task's job, delivers the succeeded
// outputs to object storage and persists the finalized job.
func (s *transcodeService) ProcessTask(ctx context.Context, task repository.TranscodeTask) error {
	log := slog.With(
		slog.String("job_id", task.JobID.String()),
		slog.Int("retry_count", task.RetryCount),
	)

	job, err := s.repo.GetByID(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			log.Warn("dropping task for unknown job")
			return nil
		}
		return fmt.Errorf("get job: %w", err)
	}

	if job.Status.IsTerminal() {
		log.Info("job already finalized", slog.String("status", job.Status.String()))
		return nil
	}

	// Check if max retries exceeded - mark as failed and return nil (ack the message)
	if task.RetryCount >= s.maxRetries {
		if err := job.Abort(fmt.Errorf("gave up after %d attempts", task.RetryCount)); err != nil {
			log.Error("failed to abort job", slog.Any("error", err))
			return nil
		}
		if err := s.save(ctx, job); err != nil {
			// The job remains RUNNING in the database, which is acceptable
			log.Error("failed to mark job as failed", slog.Any("error", err))
		}
		return nil
	}

	if err := job.Start(); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if err := s.save(ctx, job); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	runCtx := ctx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	runErr := s.pipeline.Execute(runCtx, job)

	// Interrupted by shutdown: leave the job RUNNING for the redelivered task.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runErr, ErrOutputBusy) {
		log.Warn("job output is held by another run")
		return nil
	}
	if runErr != nil {
		log.Warn("pipeline finished with error", slog.Any("error", runErr))
	}

	s.deliver(ctx, log, job)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := s.save(ctx, job); err != nil {
		return fmt.Errorf("persist finalized job: %w", err)
	}

	log.Info("job completed",
		slog.String("status", job.Status.String()),
		slog.Int("duration_seconds", job.DurationSeconds),
	)
	return nil
}

// deliver uploads every succeeded rendition, the thumbnail and the master
// playlist. A tier that fails to upload is downgraded to Failed.
func (s *transcodeService) deliver(ctx context.Context, log *slog.Logger, job *model.TranscodeJob) {
	if !job.Status.IsTerminal() || job.Status == model.StatusFailed {
		return
	}

	downgraded := false
	for _, r := range job.SucceededRenditions() {
		if err := s.uploadRendition(ctx, job, r); err != nil {
			log.Error("rendition upload failed",
				slog.String("tier", r.Tier.Label),
				slog.Any("error", err),
			)
			if err := job.MarkDeliveryFailed(r.Tier.Label, err); err != nil {
				log.Error("failed to downgrade rendition", slog.Any("error", err))
			}
			downgraded = true
		}
	}

	if job.Thumbnail.Succeeded() {
		err := s.uploadFile(ctx, job.Thumbnail.Path, job.Thumbnail.StorageKey, contentTypeJPEG, metrics.UploadThumbnail)
		if err != nil {
			log.Warn("thumbnail upload failed", slog.Any("error", err))
			job.MarkThumbnailDeliveryFailed(err)
		}
	}

	if downgraded {
		if err := s.pipeline.RefreshMasterPlaylist(job); err != nil {
			log.Warn("failed to rewrite master playlist", slog.Any("error", err))
		}
	}
	if len(job.SucceededRenditions()) == 0 {
		return
	}

	masterPath := s.pipeline.MasterPlaylistPath(job)
	if _, err := os.Stat(masterPath); err != nil {
		return
	}
	master := s.pipeline.Locator().Master(job.Source.OwnerID, job.Source.BaseName)
	if err := s.uploadFile(ctx, masterPath, master.StorageKey, contentTypeManifest, metrics.UploadMaster); err != nil {
		log.Warn("master playlist upload failed", slog.Any("error", err))
	}
}

// uploadRendition uploads the segments before the manifest so a published
// manifest never references a missing segment. On failure the objects
// already written for the tier are removed.
func (s *transcodeService) uploadRendition(ctx context.Context, job *model.TranscodeJob, r model.RenditionOutput) error {
	loc := s.pipeline.Locator()
	uploaded := make([]string, 0, len(r.SegmentPaths))
	for _, segmentPath := range r.SegmentPaths {
		key := loc.Key(job.Source.OwnerID, filepath.Base(segmentPath))
		if err := s.uploadFile(ctx, segmentPath, key, contentTypeSegment, metrics.UploadSegment); err != nil {
			s.rollback(ctx, uploaded)
			return fmt.Errorf("upload segment %s: %w", filepath.Base(segmentPath), err)
		}
		uploaded = append(uploaded, key)
	}

	if err := s.uploadFile(ctx, r.ManifestPath, r.StorageKey, contentTypeManifest, metrics.UploadManifest); err != nil {
		s.rollback(ctx, uploaded)
		return fmt.Errorf("upload manifest: %w", err)
	}
	return nil
}

// rollback deletes keys best-effort. Objects that survive are overwritten
// by the next delivery of the same job.
func (s *transcodeService) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			slog.Warn("failed to remove partially delivered object",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}

// uploadFile uploads a single file to object storage.
func (s *transcodeService) uploadFile(ctx context.Context, localPath, key, contentType, kind string) error {
	err := s.putFile(ctx, localPath, key, contentType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(kind, metrics.StatusFailed).Inc()
		return err
	}
	metrics.UploadsTotal.WithLabelValues(kind, metrics.StatusSucceeded).Inc()
	return nil
}

func (s *transcodeService) putFile(ctx context.Context, localPath, key, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := s.storage.Upload(ctx, key, file, contentType); err != nil {
		return fmt.Errorf("storage upload: %w", err)
	}
	return nil
}

// save persists the job and drops its cached copy.
func (s *transcodeService) save(ctx context.Context, job *model.TranscodeJob) error {
	if err := s.repo.Update(ctx, job); err != nil {
		return err
	}
	s.invalidate(ctx, job.ID)
	return nil
}

func (s *transcodeService) invalidate(ctx context.Context, jobID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, jobID); err != nil {
		// Log but don't fail - the entry expires with its TTL
		slog.Warn("failed to invalidate job cache",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err),
		)
	}
}
