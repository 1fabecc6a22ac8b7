package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestChunkLockKey(t *testing.T) {
	got := chunkLockKey("64f0c2a1b3d4e5f601234567", 3)
	want := "chunk_lock:64f0c2a1b3d4e5f601234567:3"
	if got != want {
		t.Errorf("chunkLockKey = %q, want %q", got, want)
	}
}

func TestKeepAliveTicksUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(context.Background(), 10*time.Millisecond, func() {
		calls.Add(1)
	})
	time.Sleep(80 * time.Millisecond)
	stop()
	seen := calls.Load()
	if seen == 0 {
		t.Fatal("expected at least one keep-alive tick during a long call")
	}
	time.Sleep(40 * time.Millisecond)
	if got := calls.Load(); got != seen {
		t.Errorf("keep-alive ticked after stop: %d then %d", seen, got)
	}
}

func TestKeepAliveStopIdempotent(t *testing.T) {
	stop := keepAlive(context.Background(), time.Hour, func() {})
	stop()
	stop()
}

func TestKeepAliveStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	stop := keepAlive(ctx, 5*time.Millisecond, func() {
		calls.Add(1)
	})
	defer stop()

	cancel()
	time.Sleep(30 * time.Millisecond)
	base := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != base {
		t.Errorf("keep-alive kept ticking after context cancel: %d then %d", base, got)
	}
}
