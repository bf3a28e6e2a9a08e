package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_BackoffGrowsAndCaps(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}.withDefaults()
	p.Jitter = 0

	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(10))
}

func TestPolicy_JitterStaysInRange(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, Multiplier: 2, Jitter: 0.25}.withDefaults()
	for i := 0; i < 100; i++ {
		d := p.Backoff(0)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(5, 200, 0, 0, 0.1, 10, 0)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 10*time.Second, p.Timeout(TimeoutShort))
	assert.Equal(t, 60*time.Second, p.Timeout(TimeoutLong))
}
