package redisutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/icodeforyou/meterit-go/config"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewClient(config.AppConfigRedis{Addr: addr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClientRequiresAddr(t *testing.T) {
	if _, err := NewClient(config.AppConfigRedis{Addr: "  "}); err == nil {
		t.Errorf("expected an error for an empty address")
	}
}

func TestNilLocker(t *testing.T) {
	var l *Locker
	if _, _, err := l.TryLock(context.Background(), "k", time.Second); err == nil {
		t.Errorf("expected an error from a nil locker")
	}
	if err := l.Release(context.Background(), "k", "t"); err != nil {
		t.Errorf("release on a nil locker should be a no-op, got %v", err)
	}
	if NewLocker(nil) != nil {
		t.Errorf("NewLocker(nil) should return nil")
	}
}

func TestLocker(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := "meterit-test:lock:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { client.Del(ctx, key) })

	l := NewLocker(client)

	token, ok, err := l.TryLock(ctx, key, 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, key, 10*time.Second); ok {
		t.Errorf("second TryLock should fail while the lock is held")
	}

	if err := l.Release(ctx, key, "not-the-owner"); err != nil {
		t.Fatalf("Release with a foreign token: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, 10*time.Second); ok {
		t.Errorf("a foreign token must not release the lock")
	}

	if err := l.Release(ctx, key, token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, key, 10*time.Second); !ok {
		t.Errorf("lock should be free after release")
	}
}
