package ai

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProviderLimiter bounds outbound pressure on one external provider three
// ways: a concurrency cap, a requests-per-minute limiter, and a minimum
// delay between consecutive request starts.
type ProviderLimiter struct {
	sem      chan struct{}
	rpm      *rate.Limiter
	minDelay time.Duration

	mu        sync.Mutex
	lastStart time.Time
}

func NewProviderLimiter(maxConcurrent, requestsPerMinute int, minDelay time.Duration) *ProviderLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &ProviderLimiter{
		sem:      make(chan struct{}, maxConcurrent),
		rpm:      rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		minDelay: minDelay,
	}
}

// Acquire blocks until a slot is available or ctx is done. The caller must
// call Release exactly once after Acquire returns nil.
func (l *ProviderLimiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := l.rpm.Wait(ctx); err != nil {
		<-l.sem
		return err
	}

	if err := l.waitMinDelay(ctx); err != nil {
		<-l.sem
		return err
	}
	return nil
}

func (l *ProviderLimiter) waitMinDelay(ctx context.Context) error {
	if l.minDelay <= 0 {
		return nil
	}
	l.mu.Lock()
	now := time.Now()
	next := l.lastStart.Add(l.minDelay)
	if next.Before(now) {
		next = now
	}
	l.lastStart = next
	l.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ProviderLimiter) Release() {
	<-l.sem
}
