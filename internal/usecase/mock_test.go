package usecase

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/locator"
	"github.com/hszk-dev/abrpack/internal/transcoder"
)

// fakeMedia provides a configurable transcoder.Media. By default every
// operation succeeds and writes small placeholder files.
type fakeMedia struct {
	probeFn     func(ctx context.Context, sourcePath string) (int, error)
	encodeFn    func(ctx context.Context, req transcoder.EncodeRequest, report func(int)) (*transcoder.EncodeResult, error)
	thumbnailFn func(ctx context.Context, req transcoder.ThumbnailRequest) model.Thumbnail

	probeCalls     atomic.Int32
	encodeCalls    atomic.Int32
	thumbnailCalls atomic.Int32
}

func (m *fakeMedia) Probe(ctx context.Context, sourcePath string) (int, error) {
	m.probeCalls.Add(1)
	if m.probeFn != nil {
		return m.probeFn(ctx, sourcePath)
	}
	return 10, nil
}

func (m *fakeMedia) Encode(ctx context.Context, req transcoder.EncodeRequest) *transcoder.Encoding {
	m.encodeCalls.Add(1)
	return transcoder.StartEncoding(req.Tier, func(report func(int)) (*transcoder.EncodeResult, error) {
		if m.encodeFn != nil {
			return m.encodeFn(ctx, req, report)
		}
		report(50)
		return writeFakeRendition(req, 2)
	})
}

func (m *fakeMedia) ExtractThumbnail(ctx context.Context, req transcoder.ThumbnailRequest) model.Thumbnail {
	m.thumbnailCalls.Add(1)
	if m.thumbnailFn != nil {
		return m.thumbnailFn(ctx, req)
	}
	if err := os.WriteFile(req.OutputPath, []byte("jpeg"), 0644); err != nil {
		return model.Thumbnail{Status: model.OutcomeFailed, Err: err, OffsetSeconds: req.OffsetSeconds}
	}
	return model.Thumbnail{Path: req.OutputPath, OffsetSeconds: req.OffsetSeconds, Status: model.OutcomeSucceeded}
}

// writeFakeRendition writes a manifest and segments the way ffmpeg names them.
func writeFakeRendition(req transcoder.EncodeRequest, segments int) (*transcoder.EncodeResult, error) {
	res := &transcoder.EncodeResult{
		ManifestPath: filepath.Join(req.OutputDir, locator.ManifestName(req.BaseName, req.Tier)),
	}
	for i := range segments {
		p := filepath.Join(req.OutputDir, locator.SegmentName(req.BaseName, req.Tier, i))
		if err := os.WriteFile(p, []byte("ts"), 0644); err != nil {
			return nil, err
		}
		res.SegmentPaths = append(res.SegmentPaths, p)
	}
	if err := os.WriteFile(res.ManifestPath, []byte("#EXTM3U\n"), 0644); err != nil {
		return nil, err
	}
	return res, nil
}

// mockJobRepository provides a configurable mock for JobRepository.
type mockJobRepository struct {
	createFn  func(ctx context.Context, job *model.TranscodeJob) error
	getByIDFn func(ctx context.Context, id uuid.UUID) (*model.TranscodeJob, error)
	updateFn  func(ctx context.Context, job *model.TranscodeJob) error

	mu      sync.Mutex
	updates []model.Status
}

func (m *mockJobRepository) Create(ctx context.Context, job *model.TranscodeJob) error {
	if m.createFn != nil {
		return m.createFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TranscodeJob, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *model.TranscodeJob) error {
	m.mu.Lock()
	m.updates = append(m.updates, job.Status)
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, job)
	}
	return nil
}

// updatedStatuses returns the job status passed to each Update call.
func (m *mockJobRepository) updatedStatuses() []model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Status(nil), m.updates...)
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
// Uploaded keys and content types are recorded.
type mockObjectStorage struct {
	uploadFn func(ctx context.Context, key string, reader io.Reader, contentType string) error
	deleteFn func(ctx context.Context, key string) error

	mu       sync.Mutex
	uploaded map[string]string
	deleted  []string
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadFn != nil {
		if err := m.uploadFn(ctx, key, reader, contentType); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploaded == nil {
		m.uploaded = make(map[string]string)
	}
	m.uploaded[key] = contentType
	return nil
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		if err := m.deleteFn(ctx, key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploaded, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockObjectStorage) deletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *mockObjectStorage) contentType(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.uploaded[key]
	return ct, ok
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishTranscodeTaskFn  func(ctx context.Context, task repository.TranscodeTask) error
	consumeTranscodeTasksFn func(ctx context.Context, handler func(ctx context.Context, task repository.TranscodeTask) error) error
}

func (m *mockMessageQueue) PublishTranscodeTask(ctx context.Context, task repository.TranscodeTask) error {
	if m.publishTranscodeTaskFn != nil {
		return m.publishTranscodeTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeTranscodeTasks(ctx context.Context, handler func(ctx context.Context, task repository.TranscodeTask) error) error {
	if m.consumeTranscodeTasksFn != nil {
		return m.consumeTranscodeTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockJobCache is a mock implementation of JobCache for testing.
type mockJobCache struct {
	mu       sync.RWMutex
	data     map[uuid.UUID]*model.TranscodeJob
	getFn    func(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error)
	setFn    func(ctx context.Context, job *model.TranscodeJob, ttl time.Duration) error
	deleteFn func(ctx context.Context, jobID uuid.UUID) error

	deleteCount atomic.Int32
}

func newMockJobCache() *mockJobCache {
	return &mockJobCache{
		data: make(map[uuid.UUID]*model.TranscodeJob),
	}
}

func (m *mockJobCache) Get(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error) {
	if m.getFn != nil {
		return m.getFn(ctx, jobID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[jobID], nil
}

func (m *mockJobCache) Set(ctx context.Context, job *model.TranscodeJob, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, job, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[job.ID] = job
	return nil
}

func (m *mockJobCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	m.deleteCount.Add(1)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, jobID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, jobID)
	return nil
}

// mockJobService is a mock implementation of JobService for testing.
type mockJobService struct {
	submitJobFn func(ctx context.Context, input SubmitJobInput) (*model.TranscodeJob, error)
	getJobFn    func(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error)
	getResultFn func(ctx context.Context, jobID uuid.UUID) (*model.JobResult, error)
	getJobCount atomic.Int32
}

func (m *mockJobService) SubmitJob(ctx context.Context, input SubmitJobInput) (*model.TranscodeJob, error) {
	if m.submitJobFn != nil {
		return m.submitJobFn(ctx, input)
	}
	return nil, nil
}

func (m *mockJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.TranscodeJob, error) {
	m.getJobCount.Add(1)
	if m.getJobFn != nil {
		return m.getJobFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockJobService) GetResult(ctx context.Context, jobID uuid.UUID) (*model.JobResult, error) {
	if m.getResultFn != nil {
		return m.getResultFn(ctx, jobID)
	}
	return nil, nil
}
