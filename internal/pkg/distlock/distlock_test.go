package distlock

// ==== DISTLOCK TESTS ====

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	a := NewLock(client, nil, "sweep", time.Minute)
	b := NewLock(client, nil, "sweep", time.Minute)

	won, err := a.Acquire(ctx)
	if err != nil || !won {
		t.Fatalf("first acquire: won=%v err=%v", won, err)
	}
	won, err = b.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if won {
		t.Fatal("both holders acquired the same lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	won, err = b.Acquire(ctx)
	if err != nil || !won {
		t.Fatalf("acquire after release: won=%v err=%v", won, err)
	}
}

func TestRedisLock_ReleaseOnlyOwnToken(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	a := NewLock(client, nil, "sweep", time.Minute)
	if won, _ := a.Acquire(ctx); !won {
		t.Fatal("acquire failed")
	}

	// A stranger with a different token must not delete the key.
	b := NewLock(client, nil, "sweep", time.Minute)
	if err := b.Release(ctx); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if !mr.Exists("coldpost:lock:sweep") {
		t.Fatal("lock key deleted by non-owner")
	}
}

func TestRedisLock_ExpiresWithTTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	a := NewLock(client, nil, "sweep", time.Second)
	if won, _ := a.Acquire(ctx); !won {
		t.Fatal("acquire failed")
	}

	mr.FastForward(2 * time.Second)

	b := NewLock(client, nil, "sweep", time.Second)
	won, err := b.Acquire(ctx)
	if err != nil || !won {
		t.Fatalf("acquire after expiry: won=%v err=%v", won, err)
	}
}

func TestNewLock_FallsBackWithoutRedis(t *testing.T) {
	if _, ok := NewLock(nil, nil, "sweep", time.Minute).(*advisoryLock); !ok {
		t.Fatal("expected advisory lock when no redis client is configured")
	}
}
