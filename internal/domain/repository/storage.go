package repository

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for the content store that serves
// delivered renditions. Implementations should be provided by the
// infrastructure layer (e.g., MinIO, S3).
type ObjectStorage interface {
	// Upload stores an object under key, replacing any previous version.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
