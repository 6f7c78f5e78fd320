package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// JobRepository defines the interface for transcode job persistence.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type JobRepository interface {
	// Create persists a new job.
	// Returns ErrDuplicateJob if a job with the same ID exists.
	Create(ctx context.Context, job *model.TranscodeJob) error

	// GetByID retrieves a job by its unique identifier.
	// Returns nil and ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.TranscodeJob, error)

	// Update persists the job's status, results and conditions.
	// Returns ErrJobNotFound if the job does not exist.
	Update(ctx context.Context, job *model.TranscodeJob) error
}
