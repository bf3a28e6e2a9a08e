package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type charge struct {
	provider, operation string
	units               int
	price               float64
}

type fakeRecorder struct {
	mu      sync.Mutex
	charges []charge
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, provider, operation string, units int, unitPrice float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, charge{provider, operation, units, unitPrice})
	return f.err
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

type flatPrices float64

func (p flatPrices) UnitPrice(string, string) float64 { return float64(p) }

func newTestExecutor(rec CostRecorder, opts ...Option) *Executor {
	opts = append(opts, WithCostRecorder(rec, flatPrices(0.01)))
	x := NewExecutor(Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, opts...)
	x.sleep = func(context.Context, time.Duration) error { return nil }
	return x
}

var lookup = Call{Provider: "prospeo", Operation: "search", Budget: Budget{MaxAttempts: 3, Timeout: TimeoutShort}}

func TestExecute_SuccessChargesOnce(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)

	got, err := Execute(context.Background(), x, lookup, func(context.Context) (string, error) {
		return "owner@acme.com", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "owner@acme.com", got)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, charge{"prospeo", "search", 1, 0.01}, rec.charges[0])
}

func TestExecute_TransientRetriedAndEveryAttemptCharged(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)

	calls := 0
	_, err := Execute(context.Background(), x, lookup, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("overloaded"), 503)
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, rec.count())
}

func TestExecute_ExhaustedAfterBudget(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)

	calls := 0
	err := x.Do(context.Background(), lookup, func(context.Context) error {
		calls++
		return NewTransientError(errors.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderExhausted)
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, "provider_exhausted", Reason(err))
}

func TestExecute_PermanentNotRetried(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)

	calls := 0
	err := x.Do(context.Background(), lookup, func(context.Context) error {
		calls++
		return NewPermanentError(errors.New("invalid api key"), 401)
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderExhausted)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "permanent", Reason(err))
}

func TestExecute_BudgetOverridesPolicyAttempts(t *testing.T) {
	x := newTestExecutor(&fakeRecorder{})
	calls := 0
	call := lookup
	call.Budget.MaxAttempts = 1
	err := x.Do(context.Background(), call, func(context.Context) error {
		calls++
		return NewTransientError(errors.New("503"), 503)
	})
	assert.ErrorIs(t, err, ErrProviderExhausted)
	assert.Equal(t, 1, calls)
}

func TestExecute_CancelledContextIssuesNoCall(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := x.Do(ctx, lookup, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Zero(t, rec.count())
}

func TestExecute_InFlightCallSurvivesCancel(t *testing.T) {
	x := newTestExecutor(&fakeRecorder{})
	ctx, cancel := context.WithCancel(context.Background())

	err := x.Do(ctx, lookup, func(attemptCtx context.Context) error {
		cancel()
		assert.NoError(t, attemptCtx.Err())
		return nil
	})
	assert.NoError(t, err)
}

func TestExecute_StopsRetryingAfterCancel(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := x.Do(ctx, lookup, func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rec.count())
}

func TestExecute_RateLimitedNotCharged(t *testing.T) {
	rec := &fakeRecorder{}
	lim := NewLimiters(LimitConfig{}, map[string]LimitConfig{
		"prospeo": {RPS: 0.001, Burst: 1, MaxWait: time.Millisecond},
	})
	x := newTestExecutor(rec, WithLimiters(lim))

	require.NoError(t, x.Do(context.Background(), lookup, func(context.Context) error { return nil }))
	err := x.Do(context.Background(), lookup, func(context.Context) error {
		t.Fatal("must not be called without a token")
		return nil
	})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "rate_limited", Reason(err))
}

func TestExecute_AttemptTimeoutIsTransient(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)
	x.policy.ShortTimeout = 5 * time.Millisecond

	err := x.Do(context.Background(), lookup, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrProviderExhausted)
	assert.Equal(t, 3, rec.count())
}

func TestExecute_CircuitOpensAfterThreshold(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec, WithBreakers(NewBreakers(BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})))

	call := lookup
	call.Budget.MaxAttempts = 1
	for i := 0; i < 2; i++ {
		_ = x.Do(context.Background(), call, func(context.Context) error {
			return NewTransientError(errors.New("502"), 502)
		})
	}
	err := x.Do(context.Background(), call, func(context.Context) error {
		t.Fatal("breaker should reject")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, rec.count())
}

func TestExecute_ConcurrentChargesExact(t *testing.T) {
	rec := &fakeRecorder{}
	x := newTestExecutor(rec)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = x.Do(context.Background(), lookup, func(context.Context) error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rec.count())
}

func TestExecute_LedgerFailureStopsFurtherCalls(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("database is locked")}
	x := newTestExecutor(rec)

	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}

	// The call that reached the provider still returns its result.
	got, err := Execute(context.Background(), x, lookup, fn)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	require.ErrorIs(t, x.Err(), ErrLedgerUnavailable)
	assert.Contains(t, x.Err().Error(), "database is locked")

	for range 3 {
		_, err = Execute(context.Background(), x, lookup, fn)
		require.ErrorIs(t, err, ErrLedgerUnavailable)
		assert.True(t, IsFatal(err))
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rec.count())
}
