// Package suppression maintains the durable do-not-contact set and filters
// lead batches against it before any paid call is made.
package suppression

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Store persists suppression entries. UpsertSuppression must be durable
// when it returns.
type Store interface {
	UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error
	ListSuppressions(ctx context.Context) ([]model.SuppressionEntry, error)
}

// Normalize canonicalizes an email identity: trimmed, NFC, case-folded.
// A Caser is stateful, so each call builds its own.
func Normalize(identity string) string {
	s := strings.TrimSpace(identity)
	return cases.Fold().String(norm.NFC.String(s))
}

// Gate is the in-memory view of the suppression set, written through to
// its Store on every mutation. Entries are never removed.
type Gate struct {
	store Store
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]model.SuppressionEntry
}

// Load reads the persisted set into a new Gate.
func Load(ctx context.Context, store Store) (*Gate, error) {
	g := &Gate{store: store, now: time.Now, entries: make(map[string]model.SuppressionEntry)}
	if store == nil {
		return g, nil
	}
	list, err := store.ListSuppressions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "suppression: load")
	}
	for _, e := range list {
		g.entries[Normalize(e.Email)] = e
	}
	zap.L().Debug("suppression: loaded set", zap.Int("entries", len(g.entries)))
	return g, nil
}

// Add inserts or overwrites the entry for identity. The entry is flushed to
// the store before it is visible to IsSuppressed.
func (g *Gate) Add(ctx context.Context, identity string, reason model.SuppressionReason, source string) (model.SuppressionEntry, error) {
	key := Normalize(identity)
	if !model.ValidEmail(key) {
		return model.SuppressionEntry{}, eris.Errorf("suppression: invalid identity %q", identity)
	}
	if _, err := model.ParseSuppressionReason(string(reason)); err != nil {
		return model.SuppressionEntry{}, eris.Wrap(err, "suppression: add")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e := model.SuppressionEntry{
		Email:   key,
		Reason:  reason,
		Source:  source,
		AddedAt: g.now().UTC(),
	}
	if g.store != nil {
		if err := g.store.UpsertSuppression(ctx, e); err != nil {
			return model.SuppressionEntry{}, eris.Wrapf(err, "suppression: persist %s", key)
		}
	}
	g.entries[key] = e
	return e, nil
}

// Request is one entry of a bulk add.
type Request struct {
	Identity string
	Reason   model.SuppressionReason
	Source   string
}

// BulkResult reports a bulk add. Errors is indexed like the input; nil
// means the entry was stored.
type BulkResult struct {
	Added  int
	Errors []error
}

// BulkAdd adds each request independently. A malformed entry fails alone.
func (g *Gate) BulkAdd(ctx context.Context, reqs []Request) BulkResult {
	res := BulkResult{Errors: make([]error, len(reqs))}
	for i, r := range reqs {
		if _, err := g.Add(ctx, r.Identity, r.Reason, r.Source); err != nil {
			res.Errors[i] = err
			continue
		}
		res.Added++
	}
	return res
}

// IsSuppressed reports whether identity is in the set.
func (g *Gate) IsSuppressed(identity string) bool {
	_, ok := g.Lookup(identity)
	return ok
}

// Lookup returns the entry for identity.
func (g *Gate) Lookup(identity string) (model.SuppressionEntry, bool) {
	key := Normalize(identity)
	if key == "" {
		return model.SuppressionEntry{}, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[key]
	return e, ok
}

// Filter partitions leads by membership. Suppressed leads come back as
// copies tagged suppressed. Leads without an email pass through; they are
// checked again once enrichment has found one.
func (g *Gate) Filter(leads []model.Lead) (allowed, suppressed []model.Lead) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allowed = make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if l.Email != "" {
			if _, ok := g.entries[Normalize(l.Email)]; ok {
				suppressed = append(suppressed, l.WithStatus(model.LeadStatusSuppressed))
				continue
			}
		}
		allowed = append(allowed, l)
	}
	return allowed, suppressed
}

// Len returns the number of suppressed identities.
func (g *Gate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Export returns every entry sorted by identity.
func (g *Gate) Export() []model.SuppressionEntry {
	g.mu.RLock()
	out := make([]model.SuppressionEntry, 0, len(g.entries))
	for _, e := range g.entries {
		out = append(out, e)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}
