package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
	"github.com/hszk-dev/abrpack/internal/locator"
	"github.com/hszk-dev/abrpack/internal/transcoder"
)

const (
	// DefaultConcurrencyLimit keeps tier encodes sequential.
	DefaultConcurrencyLimit = 1

	// DefaultThumbnailOffsetSeconds is the poster frame position.
	DefaultThumbnailOffsetSeconds = 1
)

var (
	// ErrOutputBusy is returned when another run holds the job's output lock.
	ErrOutputBusy = errors.New("output is locked by another run")

	// ErrAllTiersFailed is returned when no requested tier produced a rendition.
	ErrAllTiersFailed = errors.New("all tiers failed")
)

// PipelineConfig holds configuration for Pipeline.
type PipelineConfig struct {
	// OutputRoot is the local directory under which videos/{ownerID}/ is created.
	OutputRoot string
	// ConcurrencyLimit is the maximum number of tier encodes in flight.
	ConcurrencyLimit int
	// ThumbnailOffsetSeconds is where the poster frame is taken.
	ThumbnailOffsetSeconds int
	// AudioBitrateKbps is advertised in the master playlist bandwidth.
	AudioBitrateKbps int
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		OutputRoot:             filepath.Join(os.TempDir(), "abrpack"),
		ConcurrencyLimit:       DefaultConcurrencyLimit,
		ThumbnailOffsetSeconds: DefaultThumbnailOffsetSeconds,
		AudioBitrateKbps:       128,
	}
}

// Pipeline sequences probe, thumbnail extraction and one encode per tier
// for a job, and applies the partial-success policy to the results.
type Pipeline struct {
	media   transcoder.Media
	locator locator.Locator
	cfg     PipelineConfig
}

// NewPipeline creates a Pipeline. Non-positive limits fall back to defaults.
func NewPipeline(media transcoder.Media, loc locator.Locator, cfg PipelineConfig) *Pipeline {
	if cfg.ConcurrencyLimit < 1 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.ThumbnailOffsetSeconds < 0 {
		cfg.ThumbnailOffsetSeconds = DefaultThumbnailOffsetSeconds
	}
	return &Pipeline{
		media:   media,
		locator: loc,
		cfg:     cfg,
	}
}

// Run creates a job for source and tiers and executes it.
// Validation failures return a nil job; otherwise the finalized job is
// always returned, together with any job-level error.
func (p *Pipeline) Run(ctx context.Context, source model.SourceAsset, tiers []model.Tier) (*model.TranscodeJob, error) {
	job, err := model.NewTranscodeJob(source, tiers)
	if err != nil {
		return nil, err
	}
	return job, p.Execute(ctx, job)
}

// OutputDir returns the local directory receiving the owner's outputs.
func (p *Pipeline) OutputDir(ownerID string) string {
	return locator.OwnerDir(p.cfg.OutputRoot, ownerID)
}

// Execute runs a PENDING or RUNNING job to a terminal status.
//
// It returns an error wrapping model.ErrDirectory when the output directory
// is unusable, ErrOutputBusy when another run holds the output lock, the
// context error when the job is cancelled, and
// ErrAllTiersFailed when no tier succeeded. The job is finalized in every
// case except a rejected initial transition.
func (p *Pipeline) Execute(ctx context.Context, job *model.TranscodeJob) error {
	log := slog.With(
		slog.String("job_id", job.ID.String()),
		slog.String("owner_id", job.Source.OwnerID),
		slog.String("base_name", job.Source.BaseName),
	)

	if err := job.Start(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return p.abort(log, job, fmt.Errorf("job cancelled before start: %w", err))
	}

	outDir := p.OutputDir(job.Source.OwnerID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return p.abort(log, job, fmt.Errorf("%w: create %s: %w", model.ErrDirectory, outDir, err))
	}

	lock := flock.New(filepath.Join(outDir, "."+job.Source.BaseName+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return p.abort(log, job, fmt.Errorf("%w: lock %s: %w", model.ErrDirectory, outDir, err))
	}
	if !locked {
		return p.abort(log, job, fmt.Errorf("%w: %s", ErrOutputBusy, outDir))
	}
	defer func() { _ = lock.Unlock() }()

	log.Info("pipeline started", slog.Int("tiers", len(job.RequestedTiers)))

	// The thumbnail only reads the source, so it overlaps probe and encodes.
	thumbCh := make(chan model.Thumbnail, 1)
	go func() {
		thumbCh <- p.extractThumbnail(ctx, log, job.Source, outDir)
	}()

	duration, probeErr := p.media.Probe(ctx, job.Source.Path)
	if err := job.RecordDuration(duration, probeErr); err != nil {
		return err
	}
	if probeErr != nil {
		metrics.ProbesTotal.WithLabelValues(metrics.StatusDegraded).Inc()
		log.Warn("duration probe degraded", slog.Any("error", probeErr))
	} else {
		metrics.ProbesTotal.WithLabelValues(metrics.StatusSucceeded).Inc()
	}

	outputs := p.encodeAll(ctx, log, job, outDir)

	if err := job.RecordThumbnail(<-thumbCh); err != nil {
		return err
	}
	if err := job.RecordRenditions(outputs); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return p.abort(log, job, fmt.Errorf("job cancelled: %w", err))
	}

	if err := p.RefreshMasterPlaylist(job); err != nil {
		log.Warn("failed to write master playlist", slog.Any("error", err))
	}

	if err := job.Finalize(); err != nil {
		return err
	}
	metrics.JobsTotal.WithLabelValues(job.Status.String()).Inc()

	log.Info("pipeline finished",
		slog.String("status", job.Status.String()),
		slog.Int("duration_seconds", job.DurationSeconds),
		slog.Int("succeeded_tiers", len(job.SucceededRenditions())),
	)

	if job.Status == model.StatusFailed {
		errs := make([]error, 0, len(job.Renditions))
		for _, r := range job.Renditions {
			errs = append(errs, r.Err)
		}
		return fmt.Errorf("%w: %w", ErrAllTiersFailed, errors.Join(errs...))
	}
	return nil
}

// encodeAll runs every requested tier with at most ConcurrencyLimit in flight.
// A tier failure never cancels its siblings.
func (p *Pipeline) encodeAll(ctx context.Context, log *slog.Logger, job *model.TranscodeJob, outDir string) []model.RenditionOutput {
	outputs := make([]model.RenditionOutput, len(job.RequestedTiers))

	var g errgroup.Group
	g.SetLimit(p.cfg.ConcurrencyLimit)

	for i, tier := range job.RequestedTiers {
		g.Go(func() error {
			outputs[i] = p.encodeTier(ctx, log, job, outDir, tier)
			return nil
		})
	}
	_ = g.Wait()

	return outputs
}

func (p *Pipeline) encodeTier(ctx context.Context, log *slog.Logger, job *model.TranscodeJob, outDir string, tier model.Tier) model.RenditionOutput {
	log = log.With(slog.String("tier", tier.Label))

	if err := ctx.Err(); err != nil {
		log.Warn("tier skipped", slog.Any("error", err))
		metrics.EncodesTotal.WithLabelValues(tier.Label, metrics.StatusFailed).Inc()
		return model.FailedRendition(tier, fmt.Errorf("cancelled before start: %w", err))
	}

	log.Info("encode started")
	start := time.Now()

	enc := p.media.Encode(ctx, transcoder.EncodeRequest{
		SourcePath:      job.Source.Path,
		OutputDir:       outDir,
		BaseName:        job.Source.BaseName,
		Tier:            tier,
		DurationSeconds: job.DurationSeconds,
	})
	for percent := range enc.Progress() {
		log.Debug("encode progress", slog.Int("percent", percent))
	}
	out := enc.Wait()

	// Output finished after cancellation is not trusted.
	if out.Succeeded() && ctx.Err() != nil {
		out = model.FailedRendition(tier, fmt.Errorf("cancelled during encode: %w", ctx.Err()))
	}

	elapsed := time.Since(start)
	metrics.EncodeDurationSeconds.WithLabelValues(tier.Label).Observe(elapsed.Seconds())

	if !out.Succeeded() {
		metrics.EncodesTotal.WithLabelValues(tier.Label, metrics.StatusFailed).Inc()
		log.Error("encode failed", slog.Duration("elapsed", elapsed), slog.Any("error", out.Err))
		return out
	}

	loc := p.locator.Rendition(job.Source.OwnerID, job.Source.BaseName, tier)
	out.PublicURL = loc.PublicURL
	out.StorageKey = loc.StorageKey
	out.SegmentKeyPrefix = p.locator.SegmentKeyPrefix(job.Source.OwnerID, job.Source.BaseName, tier)

	metrics.EncodesTotal.WithLabelValues(tier.Label, metrics.StatusSucceeded).Inc()
	log.Info("encode finished",
		slog.Duration("elapsed", elapsed),
		slog.Int("segments", len(out.SegmentPaths)),
	)
	return out
}

func (p *Pipeline) extractThumbnail(ctx context.Context, log *slog.Logger, source model.SourceAsset, outDir string) model.Thumbnail {
	thumb := p.media.ExtractThumbnail(ctx, transcoder.ThumbnailRequest{
		SourcePath:    source.Path,
		OutputPath:    filepath.Join(outDir, locator.ThumbnailName(source.BaseName)),
		OffsetSeconds: p.cfg.ThumbnailOffsetSeconds,
	})

	if !thumb.Succeeded() {
		metrics.ThumbnailsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		log.Warn("thumbnail extraction failed", slog.Any("error", thumb.Err))
		return thumb
	}

	loc := p.locator.Thumbnail(source.OwnerID, source.BaseName)
	thumb.PublicURL = loc.PublicURL
	thumb.StorageKey = loc.StorageKey

	metrics.ThumbnailsTotal.WithLabelValues(metrics.StatusSucceeded).Inc()
	return thumb
}

// MasterPlaylistPath returns the local path of the job's master playlist.
func (p *Pipeline) MasterPlaylistPath(job *model.TranscodeJob) string {
	return filepath.Join(p.OutputDir(job.Source.OwnerID), locator.MasterName(job.Source.BaseName))
}

// RefreshMasterPlaylist rewrites the master playlist from the job's current
// renditions. The playlist is removed when no tier succeeded.
func (p *Pipeline) RefreshMasterPlaylist(job *model.TranscodeJob) error {
	path := p.MasterPlaylistPath(job)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale master playlist: %w", err)
	}

	if len(job.SucceededRenditions()) == 0 {
		return nil
	}
	return transcoder.WriteMasterPlaylist(path, job.Renditions, p.cfg.AudioBitrateKbps)
}

// Locator returns the locator used to address the pipeline's outputs.
func (p *Pipeline) Locator() locator.Locator {
	return p.locator
}

func (p *Pipeline) abort(log *slog.Logger, job *model.TranscodeJob, cause error) error {
	if err := job.Abort(cause); err != nil {
		return errors.Join(cause, err)
	}
	metrics.JobsTotal.WithLabelValues(job.Status.String()).Inc()
	log.Error("pipeline aborted", slog.Any("error", cause))
	return cause
}
