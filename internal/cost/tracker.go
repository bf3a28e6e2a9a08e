package cost

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Ledger durably stores cost entries. Appends must be flushed before they
// return.
type Ledger interface {
	AppendCost(ctx context.Context, e model.CostEntry) error
	ListCosts(ctx context.Context, since time.Time) ([]model.CostEntry, error)
}

// Tracker appends one entry per provider call and aggregates the entries of
// the current run. It is shared by every concurrent lead task.
type Tracker struct {
	ledger Ledger
	runID  string
	now    func() time.Time

	mu       sync.Mutex
	entries  []model.CostEntry
	unsaved  int
	writeErr error
}

// NewTracker creates a tracker for runID. ledger may be nil for in-memory use.
func NewTracker(ledger Ledger, runID string) *Tracker {
	return &Tracker{ledger: ledger, runID: runID, now: time.Now}
}

// Record appends a ledger entry, persisting it before it returns. When the
// write fails the entry is still kept for Summary, counted by Unsaved, and
// the error is returned and remembered by Err.
func (t *Tracker) Record(ctx context.Context, provider, operation string, units int, unitPrice float64) error {
	e := model.CostEntry{
		ID:        uuid.NewString(),
		RunID:     t.runID,
		Provider:  provider,
		Operation: operation,
		Units:     units,
		UnitPrice: unitPrice,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e.CreatedAt = t.now().UTC()
	t.entries = append(t.entries, e)
	if t.ledger == nil {
		return nil
	}
	if err := t.ledger.AppendCost(ctx, e); err != nil {
		err = eris.Wrapf(err, "cost: append %s/%s", provider, operation)
		t.unsaved++
		if t.writeErr == nil {
			t.writeErr = err
		}
		return err
	}
	return nil
}

// Err returns the first ledger write failure.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeErr
}

// Unsaved is the number of entries that are in memory only.
func (t *Tracker) Unsaved() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsaved
}

// Entries returns a copy of this run's entries in append order.
func (t *Tracker) Entries() []model.CostEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.CostEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Summary aggregates this run's entries.
func (t *Tracker) Summary() model.CostSummary {
	return Summarize(t.Entries())
}

// History aggregates every persisted entry created at or after since.
func History(ctx context.Context, ledger Ledger, since time.Time) (model.CostSummary, error) {
	entries, err := ledger.ListCosts(ctx, since)
	if err != nil {
		return model.CostSummary{}, eris.Wrap(err, "cost: list ledger")
	}
	return Summarize(entries), nil
}

// nano is the fixed-point scale used for sums so the total does not depend
// on the order entries were appended in.
const nano = 1e9

func toNano(v float64) int64   { return int64(math.Round(v * nano)) }
func fromNano(v int64) float64 { return float64(v) / nano }

// Summarize groups entries by (provider, operation). Lines are sorted by
// provider then operation.
func Summarize(entries []model.CostEntry) model.CostSummary {
	type key struct{ provider, operation string }
	type acc struct {
		calls, units int
		total        int64
	}
	groups := make(map[key]*acc)
	var total int64
	for _, e := range entries {
		k := key{e.Provider, e.Operation}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		amt := toNano(e.UnitPrice) * int64(e.Units)
		a.calls++
		a.units += e.Units
		a.total += amt
		total += amt
	}

	lines := make([]model.CostLine, 0, len(groups))
	for k, a := range groups {
		lines = append(lines, model.CostLine{
			Provider:  k.provider,
			Operation: k.operation,
			Calls:     a.calls,
			Units:     a.units,
			Total:     fromNano(a.total),
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Provider != lines[j].Provider {
			return lines[i].Provider < lines[j].Provider
		}
		return lines[i].Operation < lines[j].Operation
	})
	return model.CostSummary{Total: fromNano(total), Breakdown: lines}
}
