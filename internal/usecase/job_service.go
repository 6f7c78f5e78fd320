package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
)

var (
	// ErrJobNotFinished is returned when a result is requested for a job that
	// has not reached a terminal status.
	ErrJobNotFinished = errors.New("job has not finished")
)

// SubmitJobInput contains the input parameters for submitting a job.
type SubmitJobInput struct {
	SourcePath string
	OwnerID    string
	BaseName   string
	Tiers      []string
}

// JobService defines the interface for transcode job operations.
type JobService interface {
	// SubmitJob validates the input, stores a PENDING job and queues it.
	SubmitJob(ctx context.Context, input SubmitJobInput) (*model.TranscodeJob, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error)

	// GetResult returns the output contract of a finished job.
	GetResult(ctx context.Context, jobID uuid.UUID) (*model.JobResult, error)
}

type jobService struct {
	repo  repository.JobRepository
	queue repository.MessageQueue
}

// NewJobService creates a new JobService instance.
func NewJobService(repo repository.JobRepository, queue repository.MessageQueue) JobService {
	return &jobService{
		repo:  repo,
		queue: queue,
	}
}

// SubmitJob creates the job record before publishing so a worker never
// receives a task for a job it cannot load.
func (s *jobService) SubmitJob(ctx context.Context, input SubmitJobInput) (*model.TranscodeJob, error) {
	tiers, err := model.ParseTiers(input.Tiers)
	if err != nil {
		return nil, err
	}

	job, err := model.NewTranscodeJob(model.SourceAsset{
		Path:     input.SourcePath,
		OwnerID:  input.OwnerID,
		BaseName: input.BaseName,
	}, tiers)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.PublishTranscodeTask(ctx, repository.TranscodeTask{JobID: job.ID}); err != nil {
		return nil, fmt.Errorf("publish transcode task: %w", err)
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error) {
	return s.repo.GetByID(ctx, jobID)
}

// GetResult returns the output contract of a finished job.
func (s *jobService) GetResult(ctx context.Context, jobID uuid.UUID) (*model.JobResult, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return resultOf(job)
}

func resultOf(job *model.TranscodeJob) (*model.JobResult, error) {
	if !job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotFinished, job.Status)
	}
	res := job.Result()
	return &res, nil
}
