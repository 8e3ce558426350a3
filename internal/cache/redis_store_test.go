package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), 30*time.Second)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSetAndGetProjectStats(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stats := ProjectStats{
		FileCount:          3,
		TotalComments:      12,
		UnresolvedComments: 4,
		LastCommentTime:    &last,
	}

	if err := store.SetProjectStats(ctx, "prj_1", stats); err != nil {
		t.Fatalf("SetProjectStats failed: %v", err)
	}

	got, err := store.GetProjectStats(ctx, "prj_1")
	if err != nil {
		t.Fatalf("GetProjectStats failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached stats, got miss")
	}
	if got.TotalComments != 12 || got.UnresolvedComments != 4 || got.FileCount != 3 {
		t.Errorf("unexpected stats: %+v", got)
	}
	if got.LastCommentTime == nil || !got.LastCommentTime.Equal(last) {
		t.Errorf("lastCommentTime = %v, want %v", got.LastCommentTime, last)
	}
}

func TestGetProjectStatsMissIsNotError(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	got, err := store.GetProjectStats(context.Background(), "prj_absent")
	if err != nil {
		t.Fatalf("cache miss must not be an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %+v", got)
	}
}

func TestInvalidateProject(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.SetProjectStats(ctx, "prj_1", ProjectStats{TotalComments: 1}); err != nil {
		t.Fatalf("SetProjectStats failed: %v", err)
	}
	if err := store.InvalidateProject(ctx, "prj_1"); err != nil {
		t.Fatalf("InvalidateProject failed: %v", err)
	}

	got, err := store.GetProjectStats(ctx, "prj_1")
	if err != nil {
		t.Fatalf("GetProjectStats failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss after invalidation, got %+v", got)
	}
}

func TestStatsExpire(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.SetProjectStats(ctx, "prj_1", ProjectStats{TotalComments: 5}); err != nil {
		t.Fatalf("SetProjectStats failed: %v", err)
	}

	s.FastForward(31 * time.Second)

	got, err := store.GetProjectStats(ctx, "prj_1")
	if err != nil {
		t.Fatalf("GetProjectStats failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expiry after TTL, got %+v", got)
	}
}
