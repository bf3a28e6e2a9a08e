package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CostRecorder receives one charge per external call attempt.
type CostRecorder interface {
	Record(ctx context.Context, provider, operation string, units int, unitPrice float64) error
}

// PriceList resolves the unit price of a provider operation.
type PriceList interface {
	UnitPrice(provider, operation string) float64
}

// Call describes one logical external operation.
type Call struct {
	Provider  string
	Operation string
	// Units billed per attempt. Zero means one.
	Units  int
	Budget Budget
}

// Executor runs provider calls with pacing, retry, and cost reporting. It is
// safe for concurrent use.
type Executor struct {
	policy   Policy
	limiters *Limiters
	breakers *Breakers
	recorder CostRecorder
	prices   PriceList

	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	fault error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLimiters sets the per-provider token buckets.
func WithLimiters(l *Limiters) Option { return func(x *Executor) { x.limiters = l } }

// WithBreakers sets the per-provider circuit breakers.
func WithBreakers(b *Breakers) Option { return func(x *Executor) { x.breakers = b } }

// WithCostRecorder sets where attempt charges are reported, priced by prices.
func WithCostRecorder(r CostRecorder, prices PriceList) Option {
	return func(x *Executor) {
		x.recorder = r
		x.prices = prices
	}
}

// NewExecutor creates an Executor with the given policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	x := &Executor{policy: policy.withDefaults(), sleep: sleepCtx}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Policy returns the effective retry policy.
func (x *Executor) Policy() Policy { return x.policy }

// Err returns the ledger failure that stopped the executor, if any. Once set,
// every new call fails with it before reaching the provider.
func (x *Executor) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.fault
}

func (x *Executor) setFault(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.fault == nil {
		x.fault = err
	}
}

// Do runs fn under the executor's rules. See Execute.
func (x *Executor) Do(ctx context.Context, call Call, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, x, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn up to call.Budget.MaxAttempts times. Each attempt first
// takes a token from the provider's bucket, failing fast with ErrRateLimited
// if none frees up in time, then runs under the budget's timeout class.
// Every attempt that reaches the provider is charged exactly once.
// Transient failures back off and retry; anything else returns immediately.
// When retries run out the last error is returned wrapped in ExhaustedError.
// A cancelled ctx stops new attempts but never interrupts one in flight.
// After a charge fails to persist, no further attempt is made and the call
// returns ErrLedgerUnavailable.
func Execute[T any](ctx context.Context, x *Executor, call Call, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := call.Budget.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = x.policy.MaxAttempts
	}
	timeout := x.policy.Timeout(call.Budget.Timeout)
	breaker := x.breakers.Get(call.Provider)
	log := zap.L().With(
		zap.String("provider", call.Provider),
		zap.String("operation", call.Operation),
	)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}
		if err := x.Err(); err != nil {
			return zero, err
		}
		if err := breaker.allow(); err != nil {
			return zero, err
		}
		if err := x.limiters.Acquire(ctx, call.Provider); err != nil {
			return zero, err
		}

		val, err := runAttempt(ctx, x, call, timeout, fn)
		breaker.record(err)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) {
			return zero, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := x.policy.Backoff(attempt)
		log.Warn("resilience: retrying call",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := x.sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, &ExhaustedError{
		Provider:  call.Provider,
		Operation: call.Operation,
		Attempts:  maxAttempts,
		Err:       lastErr,
	}
}

// runAttempt runs one call with its own deadline and charges it once fn
// returns, whatever the outcome.
func runAttempt[T any](ctx context.Context, x *Executor, call Call, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	val, err := fn(attemptCtx)
	x.charge(ctx, call)
	return val, err
}

func (x *Executor) charge(ctx context.Context, call Call) {
	if x.recorder == nil {
		return
	}
	units := call.Units
	if units <= 0 {
		units = 1
	}
	var price float64
	if x.prices != nil {
		price = x.prices.UnitPrice(call.Provider, call.Operation)
	}
	if err := x.recorder.Record(context.WithoutCancel(ctx), call.Provider, call.Operation, units, price); err != nil {
		zap.L().Error("resilience: record cost, refusing further calls",
			zap.String("provider", call.Provider),
			zap.String("operation", call.Operation),
			zap.Error(err),
		)
		x.setFault(eris.Wrapf(ErrLedgerUnavailable, "%s %s: %v", call.Provider, call.Operation, err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
