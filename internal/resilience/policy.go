package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// TimeoutClass selects the per-attempt timeout of a call.
type TimeoutClass int

const (
	// TimeoutShort suits lookups and verifications.
	TimeoutShort TimeoutClass = iota
	// TimeoutLong suits scraping and LLM generation.
	TimeoutLong
)

func (c TimeoutClass) String() string {
	if c == TimeoutLong {
		return "long"
	}
	return "short"
}

// Budget bounds one logical call.
type Budget struct {
	MaxAttempts int
	Timeout     TimeoutClass
}

// Policy holds the backoff parameters shared by every provider.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the fraction of the computed delay added or removed at random.
	Jitter       float64
	ShortTimeout time.Duration
	LongTimeout  time.Duration
}

// DefaultPolicy returns the policy used when config leaves fields unset.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.25,
		ShortTimeout:   15 * time.Second,
		LongTimeout:    60 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.ShortTimeout <= 0 {
		p.ShortTimeout = d.ShortTimeout
	}
	if p.LongTimeout <= 0 {
		p.LongTimeout = d.LongTimeout
	}
	return p
}

// Timeout returns the per-attempt deadline for a class.
func (p Policy) Timeout(c TimeoutClass) time.Duration {
	if c == TimeoutLong {
		return p.LongTimeout
	}
	return p.ShortTimeout
}

// Backoff returns the delay before retry number attempt+1 (attempt is 0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		span := delay * p.Jitter
		delay += (rand.Float64()*2 - 1) * span
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// FromConfig builds a Policy from config values expressed in milliseconds and
// seconds. Zero values keep the defaults.
func FromConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitter float64, shortSecs, longSecs int) Policy {
	p := Policy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Duration(initialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(maxBackoffMs) * time.Millisecond,
		Multiplier:     multiplier,
		Jitter:         jitter,
		ShortTimeout:   time.Duration(shortSecs) * time.Second,
		LongTimeout:    time.Duration(longSecs) * time.Second,
	}
	return p.withDefaults()
}
