// Package resilience wraps external provider calls with token-bucket pacing,
// exponential-backoff retry, per-provider circuit breaking, and per-attempt
// cost reporting.
package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the state of one provider's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig controls when a provider is cut off.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the circuit. Zero disables breaking.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before one trial call.
	ResetTimeout time.Duration
}

// Breaker tracks consecutive transient failures for a single provider.
type Breaker struct {
	provider string
	cfg      BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	now      func() time.Time
}

func newBreaker(provider string, cfg BreakerConfig) *Breaker {
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{provider: provider, cfg: cfg, now: time.Now}
}

// allow returns ErrCircuitOpen while the breaker is open and the reset
// timeout has not elapsed. After it elapses one trial call is let through.
func (b *Breaker) allow() error {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.setState(CircuitHalfOpen)
	case CircuitHalfOpen:
		// A trial call is already in flight.
		return ErrCircuitOpen
	}
	return nil
}

// record feeds one attempt's result. Only transient failures count; a
// permanent error says nothing about provider health.
func (b *Breaker) record(err error) {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		b.failures = 0
		if b.state != CircuitClosed {
			b.setState(CircuitClosed)
		}
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.setState(CircuitOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(to CircuitState) {
	if b.state == to {
		return
	}
	zap.L().Warn("resilience: circuit state change",
		zap.String("provider", b.provider),
		zap.String("from", b.state.String()),
		zap.String("to", to.String()),
	)
	b.state = to
}

// Breakers hands out one Breaker per provider.
type Breakers struct {
	cfg      BreakerConfig
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewBreakers creates a per-provider breaker registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for provider, creating it on first use.
func (bs *Breakers) Get(provider string) *Breaker {
	if bs == nil {
		return nil
	}
	bs.mu.RLock()
	b, ok := bs.breakers[provider]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.breakers[provider]; ok {
		return b
	}
	b = newBreaker(provider, bs.cfg)
	bs.breakers[provider] = b
	return b
}

// States snapshots every breaker's state.
func (bs *Breakers) States() map[string]CircuitState {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make(map[string]CircuitState, len(bs.breakers))
	for name, b := range bs.breakers {
		out[name] = b.State()
	}
	return out
}
