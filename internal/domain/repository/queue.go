package repository

import (
	"context"

	"github.com/google/uuid"
)

// TranscodeTask represents a transcode job message.
// The job record itself is loaded from the JobRepository.
type TranscodeTask struct {
	JobID      uuid.UUID `json:"job_id"`
	RetryCount int       `json:"retry_count"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishTranscodeTask sends a transcode task to the queue.
	// Used by the API server after a job is submitted.
	PublishTranscodeTask(ctx context.Context, task TranscodeTask) error

	// ConsumeTranscodeTasks consumes tasks until ctx is cancelled.
	// The handler is called for each received task with the consumer's context.
	// Used by the worker service.
	ConsumeTranscodeTasks(ctx context.Context, handler func(ctx context.Context, task TranscodeTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
