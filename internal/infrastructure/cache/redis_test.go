package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/abrpack/internal/domain/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func newTestJob(t *testing.T) *model.TranscodeJob {
	t.Helper()

	job, err := model.NewTranscodeJob(
		model.SourceAsset{Path: "/staging/in.mp4", OwnerID: "owner-1", BaseName: "clip"},
		[]model.Tier{model.Tier720p, model.Tier1080p},
	)
	if err != nil {
		t.Fatalf("NewTranscodeJob failed: %v", err)
	}
	return job
}

func TestRedisJobCache_Get_CacheHit(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	ctx := context.Background()

	job := newTestJob(t)
	if err := job.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = job.RecordDuration(42, nil)

	if err := cache.Set(ctx, job, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got == nil {
		t.Fatal("expected job, got nil")
	}

	if got.ID != job.ID {
		t.Errorf("ID = %v, want %v", got.ID, job.ID)
	}
	if got.Source != job.Source {
		t.Errorf("Source = %+v, want %+v", got.Source, job.Source)
	}
	if got.Status != model.StatusRunning {
		t.Errorf("Status = %v, want %v", got.Status, model.StatusRunning)
	}
	if got.DurationSeconds != 42 {
		t.Errorf("DurationSeconds = %v, want 42", got.DurationSeconds)
	}
	if len(got.RequestedTiers) != 2 || got.RequestedTiers[1] != model.Tier1080p {
		t.Errorf("RequestedTiers = %v", got.RequestedTiers)
	}
}

func TestRedisJobCache_Get_CacheMiss(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)

	got, err := cache.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("expected nil for cache miss, got %v", got)
	}
}

func TestRedisJobCache_Get_CorruptEntry(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	id := uuid.New()

	if err := mr.Set(cache.buildKey(id), "{not json"); err != nil {
		t.Fatalf("failed to seed redis: %v", err)
	}

	if _, err := cache.Get(context.Background(), id); err == nil {
		t.Error("expected error for corrupt entry")
	}
}

func TestRedisJobCache_Set_AppliesTTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	job := newTestJob(t)

	if err := cache.Set(context.Background(), job, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if ttl := mr.TTL(cache.buildKey(job.ID)); ttl != time.Minute {
		t.Errorf("TTL = %v, want %v", ttl, time.Minute)
	}

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected entry to expire")
	}
}

func TestRedisJobCache_Delete(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	ctx := context.Background()
	job := newTestJob(t)

	if err := cache.Set(ctx, job, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := cache.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := cache.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("expected nil after delete, got %v", got)
	}
}

func TestRedisJobCache_Delete_NonExistent(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)

	if err := cache.Delete(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Delete failed for non-existent key: %v", err)
	}
}

func TestRedisJobCache_Set_AllStatuses(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	ctx := context.Background()

	statuses := []model.Status{
		model.StatusPending,
		model.StatusRunning,
		model.StatusSucceeded,
		model.StatusPartiallySucceeded,
		model.StatusFailed,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			job := newTestJob(t)
			job.Status = status

			if err := cache.Set(ctx, job, 5*time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := cache.Get(ctx, job.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}

			if got.Status != status {
				t.Errorf("Status = %v, want %v", got.Status, status)
			}
		})
	}
}

func TestRedisJobCache_Get_ConnectionError(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	mr.Close()

	if _, err := cache.Get(context.Background(), uuid.New()); err == nil {
		t.Error("expected error when redis is unavailable")
	}
}

func TestRedisJobCache_buildKey(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	jobID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	key := cache.buildKey(jobID)
	expected := "job:550e8400-e29b-41d4-a716-446655440000"

	if key != expected {
		t.Errorf("buildKey() = %v, want %v", key, expected)
	}
}

func TestRedisJobCache_Ping(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewRedisJobCache(client)
	if err := cache.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	mr.Close()
	if err := cache.Ping(context.Background()); err == nil {
		t.Error("Ping() should fail once redis is gone")
	}
}
