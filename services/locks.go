package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChunkLocker hands out short-lived distributed locks so duplicate
// deliveries of the same OCR chunk task cannot process it concurrently.
// Locks auto-expire at the TTL; a crashed holder never wedges the chunk.
type ChunkLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewChunkLocker(rdb *redis.Client, ttl time.Duration) *ChunkLocker {
	return &ChunkLocker{rdb: rdb, ttl: ttl}
}

func chunkLockKey(documentID string, chunkIndex int) string {
	return fmt.Sprintf("chunk_lock:%s:%d", documentID, chunkIndex)
}

// releaseScript deletes the lock only when the caller still holds it, so a
// slow worker cannot release a lock that already expired and was re-taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Acquire tries to take the lock for one chunk. It returns the release
// token and true on success, or false when another holder has it.
func (cl *ChunkLocker) Acquire(ctx context.Context, documentID string, chunkIndex int) (string, bool, error) {
	token := uuid.NewString()
	ok, err := cl.rdb.SetNX(ctx, chunkLockKey(documentID, chunkIndex), token, cl.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire chunk lock: %w", err)
	}
	return token, ok, nil
}

// Release frees the lock if token still owns it. Expired locks release as a
// no-op.
func (cl *ChunkLocker) Release(ctx context.Context, documentID string, chunkIndex int, token string) error {
	_, err := releaseScript.Run(ctx, cl.rdb, []string{chunkLockKey(documentID, chunkIndex)}, token).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release chunk lock: %w", err)
	}
	return nil
}

// Extend refreshes the TTL for a held lock. Long OCR calls extend before
// the lock would lapse.
func (cl *ChunkLocker) Extend(ctx context.Context, documentID string, chunkIndex int, token string) (bool, error) {
	res, err := extendScript.Run(ctx, cl.rdb,
		[]string{chunkLockKey(documentID, chunkIndex)},
		token, cl.ttl.Milliseconds()).Int()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("extend chunk lock: %w", err)
	}
	return res == 1, nil
}

// keepAlive invokes fn every interval until the returned stop func runs or
// ctx ends. stop blocks until any in-flight fn call has returned.
func keepAlive(ctx context.Context, interval time.Duration, fn func()) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
