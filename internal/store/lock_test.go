package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupLockClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestAcquireLock_Success(t *testing.T) {
	client, _ := setupLockClient(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if lock == nil {
		t.Fatal("expected lock to be acquired")
	}
	if lock.Key() != "test_lock" {
		t.Errorf("expected key 'test_lock', got %q", lock.Key())
	}
	if lock.TTL() != time.Minute {
		t.Errorf("expected TTL 1m, got %v", lock.TTL())
	}
}

func TestAcquireLock_AlreadyHeld(t *testing.T) {
	client, _ := setupLockClient(t)
	ctx := context.Background()

	first, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil || first == nil {
		t.Fatalf("first acquisition failed: %v", err)
	}

	second, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second != nil {
		t.Error("expected second acquisition to return nil")
	}
}

func TestLock_Release(t *testing.T) {
	client, _ := setupLockClient(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil || lock == nil {
		t.Fatalf("acquisition failed: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// Lock is free again.
	again, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil || again == nil {
		t.Fatal("expected re-acquisition after release")
	}
}

func TestLock_ReleaseOnlyIfOwned(t *testing.T) {
	client, mr := setupLockClient(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, client, "test_lock", time.Second)
	if err != nil || lock == nil {
		t.Fatalf("acquisition failed: %v", err)
	}

	// Lock expires; another instance takes it.
	mr.FastForward(2 * time.Second)
	other, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil || other == nil {
		t.Fatalf("re-acquisition failed: %v", err)
	}

	// Releasing the stale lock must not free the new owner's lock.
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("stale release errored: %v", err)
	}
	held, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if held != nil {
		t.Error("expected lock to still be held by the new owner")
	}
}

func TestLock_Extend(t *testing.T) {
	client, mr := setupLockClient(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, client, "test_lock", time.Second)
	if err != nil || lock == nil {
		t.Fatalf("acquisition failed: %v", err)
	}

	if err := lock.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if lock.TTL() != time.Minute {
		t.Errorf("expected TTL updated to 1m, got %v", lock.TTL())
	}

	// Past the original TTL, the extended lock is still held.
	mr.FastForward(5 * time.Second)
	other, err := AcquireLock(ctx, client, "test_lock", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if other != nil {
		t.Error("expected extended lock to still be held")
	}
}

func TestLock_ExtendAfterExpiry(t *testing.T) {
	client, mr := setupLockClient(t)
	ctx := context.Background()

	lock, err := AcquireLock(ctx, client, "test_lock", time.Second)
	if err != nil || lock == nil {
		t.Fatalf("acquisition failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if err := lock.Extend(ctx, time.Minute); err == nil {
		t.Error("expected error extending an expired lock")
	}
}
