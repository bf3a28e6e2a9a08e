package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimitConfig sizes one provider's token bucket.
type LimitConfig struct {
	// RPS is the refill rate in tokens per second. Zero or less means unlimited.
	RPS float64
	// Burst is the bucket capacity.
	Burst int
	// MaxWait bounds how long a caller may wait for a token.
	MaxWait time.Duration
}

// Limiters holds one token bucket per provider. Buckets are shared by every
// concurrent lead task.
type Limiters struct {
	def       LimitConfig
	overrides map[string]LimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim     *rate.Limiter
	maxWait time.Duration
}

// NewLimiters builds a registry. def applies to providers without an override.
func NewLimiters(def LimitConfig, overrides map[string]LimitConfig) *Limiters {
	return &Limiters{
		def:       def,
		overrides: overrides,
		buckets:   make(map[string]*bucket),
	}
}

func (l *Limiters) get(provider string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[provider]; ok {
		return b
	}
	cfg, ok := l.overrides[provider]
	if !ok {
		cfg = l.def
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	b := &bucket{lim: rate.NewLimiter(limit, burst), maxWait: maxWait}
	l.buckets[provider] = b
	return b
}

// Acquire takes one token for provider. If no token is available within the
// provider's MaxWait it returns ErrRateLimited without blocking further.
// Cancellation of ctx is returned as is.
func (l *Limiters) Acquire(ctx context.Context, provider string) error {
	if l == nil {
		return nil
	}
	b := l.get(provider)

	r := b.lim.Reserve()
	if !r.OK() {
		return ErrRateLimited
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if delay > b.maxWait {
		r.Cancel()
		return ErrRateLimited
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
