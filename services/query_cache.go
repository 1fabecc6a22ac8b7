package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
)

// QueryCache memoizes per-matter query answers in Redis. Entries expire on
// their own; any document change in a matter invalidates the whole matter
// namespace because a new document can change any answer.
type QueryCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewQueryCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *QueryCache {
	return &QueryCache{rdb: rdb, ttl: ttl, logger: logger}
}

// NormalizeQuery canonicalizes a query so trivially different phrasings hit
// the same cache entry: lowercase, strip punctuation that carries no
// retrieval meaning, collapse whitespace. Sentence punctuation, quotes,
// apostrophes, and hyphens stay because they can change the question.
func NormalizeQuery(query string) string {
	lower := strings.ToLower(query)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '.' || r == ',' || r == '?' || r == '\'' || r == '"' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CacheKey builds the Redis key for one matter-scoped query.
func CacheKey(matterID, query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return fmt.Sprintf("cache:query:%s:%s", matterID, hex.EncodeToString(sum[:]))
}

// matterCachePattern is the SCAN pattern covering every cached query of one
// matter. CacheKey must stay inside this namespace or invalidation misses.
func matterCachePattern(matterID string) string {
	return fmt.Sprintf("cache:query:%s:*", matterID)
}

// Get returns the cached answer and whether it was present.
func (qc *QueryCache) Get(ctx context.Context, matterID, query string) (string, bool, error) {
	val, err := qc.rdb.Get(ctx, CacheKey(matterID, query)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query cache get: %w", err)
	}
	return val, true, nil
}

// Set stores an answer under the matter-scoped key with the configured TTL.
func (qc *QueryCache) Set(ctx context.Context, matterID, query, answer string) error {
	if err := qc.rdb.Set(ctx, CacheKey(matterID, query), answer, qc.ttl).Err(); err != nil {
		return fmt.Errorf("query cache set: %w", err)
	}
	return nil
}

// InvalidateMatter deletes every cached query for a matter. Called before a
// new document's processing task is enqueued, and again when a document
// completes, so answers computed from the pre-upload corpus never outlive
// the pipeline.
func (qc *QueryCache) InvalidateMatter(ctx context.Context, matterID string) error {
	pattern := matterCachePattern(matterID)
	var cursor uint64
	var deleted int
	for {
		keys, next, err := qc.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("query cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := qc.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("query cache delete: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		qc.logger.Debug("invalidated query cache", "matter_id", matterID, "keys", deleted)
	}
	return nil
}
