package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/infrastructure/jobcodec"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepository implements repository.JobRepository using PostgreSQL.
// Renditions, thumbnail and conditions are stored as JSONB documents.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a new job.
func (r *JobRepository) Create(ctx context.Context, job *model.TranscodeJob) error {
	const query = `
		INSERT INTO transcode_jobs (
			id, owner_id, base_name, source_path, requested_tiers, duration_seconds,
			status, renditions, thumbnail, conditions, failure_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	docs, err := encodeDocuments(job)
	if err != nil {
		return err
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableTranscodeJobs).Inc()
	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.Source.OwnerID,
		job.Source.BaseName,
		job.Source.Path,
		jobcodec.TierLabels(job.RequestedTiers),
		job.DurationSeconds,
		job.Status.String(),
		docs.renditions,
		docs.thumbnail,
		docs.conditions,
		nullString(job.FailureReason),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateJob
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its unique identifier.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TranscodeJob, error) {
	const query = `
		SELECT id, owner_id, base_name, source_path, requested_tiers, duration_seconds,
			status, renditions, thumbnail, conditions, failure_reason, created_at, updated_at
		FROM transcode_jobs
		WHERE id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableTranscodeJobs).Inc()
	job, err := r.scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}

	return job, nil
}

// Update persists the job's status, results and conditions.
func (r *JobRepository) Update(ctx context.Context, job *model.TranscodeJob) error {
	const query = `
		UPDATE transcode_jobs
		SET duration_seconds = $2, status = $3, renditions = $4, thumbnail = $5,
			conditions = $6, failure_reason = $7, updated_at = $8
		WHERE id = $1
	`

	docs, err := encodeDocuments(job)
	if err != nil {
		return err
	}

	job.UpdatedAt = time.Now()

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableTranscodeJobs).Inc()
	tag, err := r.db.Exec(ctx, query,
		job.ID,
		job.DurationSeconds,
		job.Status.String(),
		docs.renditions,
		docs.thumbnail,
		docs.conditions,
		nullString(job.FailureReason),
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrJobNotFound
	}

	return nil
}

// scanJob scans a single row into a TranscodeJob model.
func (r *JobRepository) scanJob(row pgx.Row) (*model.TranscodeJob, error) {
	var (
		record        jobcodec.Job
		renditions    []byte
		thumbnail     []byte
		conditions    []byte
		failureReason *string
	)

	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.BaseName,
		&record.SourcePath,
		&record.RequestedTiers,
		&record.DurationSeconds,
		&record.Status,
		&renditions,
		&thumbnail,
		&conditions,
		&failureReason,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalDocument(renditions, &record.Renditions); err != nil {
		return nil, fmt.Errorf("decode renditions: %w", err)
	}
	if err := unmarshalDocument(thumbnail, &record.Thumbnail); err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	if err := unmarshalDocument(conditions, &record.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	if failureReason != nil {
		record.FailureReason = *failureReason
	}

	return record.ToJob()
}

type documents struct {
	renditions string
	thumbnail  string
	conditions string
}

func encodeDocuments(job *model.TranscodeJob) (documents, error) {
	renditions, err := json.Marshal(jobcodec.FromRenditions(job.Renditions))
	if err != nil {
		return documents{}, fmt.Errorf("encode renditions: %w", err)
	}
	thumbnail, err := json.Marshal(jobcodec.FromThumbnail(job.Thumbnail))
	if err != nil {
		return documents{}, fmt.Errorf("encode thumbnail: %w", err)
	}
	conditions, err := json.Marshal(jobcodec.FromConditions(job.Conditions))
	if err != nil {
		return documents{}, fmt.Errorf("encode conditions: %w", err)
	}
	return documents{
		renditions: string(renditions),
		thumbnail:  string(thumbnail),
		conditions: string(conditions),
	}, nil
}

func unmarshalDocument(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time verification that JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)
