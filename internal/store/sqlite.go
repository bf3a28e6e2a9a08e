package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path. synchronous=FULL
// makes every committed write survive power loss.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer connection keeps PRAGMAs and in-memory databases consistent.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS suppressions (
	email    TEXT PRIMARY KEY,
	reason   TEXT NOT NULL,
	source   TEXT NOT NULL DEFAULT '',
	added_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL,
	operation  TEXT NOT NULL,
	units      INTEGER NOT NULL,
	unit_price REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL DEFAULT '',
	mode        TEXT NOT NULL,
	verdict     TEXT NOT NULL DEFAULT '',
	queries     TEXT NOT NULL,
	summary     TEXT NOT NULL,
	leads       TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS held_leads (
	campaign_id TEXT NOT NULL,
	lead_id     TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	lead        TEXT NOT NULL,
	held_at     DATETIME NOT NULL,
	PRIMARY KEY (campaign_id, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_cost_ledger_created_at ON cost_ledger(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_campaign ON runs(campaign_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppressions (email, reason, source, added_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET reason = excluded.reason, source = excluded.source, added_at = excluded.added_at`,
		e.Email, string(e.Reason), e.Source, e.AddedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert suppression %s", e.Email)
}

func (s *SQLiteStore) ListSuppressions(ctx context.Context) ([]model.SuppressionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, reason, source, added_at FROM suppressions ORDER BY email`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suppressions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SuppressionEntry
	for rows.Next() {
		var e model.SuppressionEntry
		var reason string
		if err := rows.Scan(&e.Email, &reason, &e.Source, &e.AddedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suppression")
		}
		e.Reason = model.SuppressionReason(reason)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list suppressions iterate")
}

func (s *SQLiteStore) AppendCost(ctx context.Context, e model.CostEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_ledger (id, run_id, provider, operation, units, unit_price, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Provider, e.Operation, e.Units, e.UnitPrice, e.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append cost %s/%s", e.Provider, e.Operation)
}

func (s *SQLiteStore) ListCosts(ctx context.Context, since time.Time) ([]model.CostEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, provider, operation, units, unit_price, created_at FROM cost_ledger
		 WHERE created_at >= ? ORDER BY created_at, id`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list costs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CostEntry
	for rows.Next() {
		var e model.CostEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Provider, &e.Operation, &e.Units, &e.UnitPrice, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list costs iterate")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	rec, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, campaign_id, mode, verdict, queries, summary, leads, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET verdict = excluded.verdict, summary = excluded.summary, leads = excluded.leads`,
		run.ID, run.CampaignID, string(run.Mode), string(run.Summary.Verdict),
		string(rec.queries), string(rec.summary), string(rec.leads), run.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var (
		run                     model.Run
		mode                    string
		queries, summary, leads string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, mode, queries, summary, leads, created_at FROM runs WHERE id = ?`,
		runID,
	).Scan(&run.ID, &run.CampaignID, &mode, &queries, &summary, &leads, &run.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	run.Mode = model.RunMode(mode)
	if err := decodeRun(&run, []byte(queries), []byte(summary), []byte(leads)); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first. Lead collections are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, campaign_id, mode, queries, summary, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var (
			run              model.Run
			mode             string
			queries, summary string
		)
		if err := rows.Scan(&run.ID, &run.CampaignID, &mode, &queries, &summary, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		run.Mode = model.RunMode(mode)
		if err := decodeRun(&run, []byte(queries), []byte(summary), nil); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// HoldLeads parks leads in one transaction. Re-holding a lead replaces it.
func (s *SQLiteStore) HoldLeads(ctx context.Context, runID, campaignID string, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: hold leads begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, l := range leads {
		data, err := json.Marshal(l)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal lead %s", l.ID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO held_leads (campaign_id, lead_id, run_id, lead, held_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(campaign_id, lead_id) DO UPDATE SET run_id = excluded.run_id, lead = excluded.lead, held_at = excluded.held_at`,
			campaignID, l.ID, runID, string(data), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: hold lead %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: hold leads commit")
}

func (s *SQLiteStore) ListHeldLeads(ctx context.Context, campaignID string) ([]HeldLead, error) {
	query := `SELECT run_id, campaign_id, lead, held_at FROM held_leads`
	var args []any
	if campaignID != "" {
		query += ` WHERE campaign_id = ?`
		args = append(args, campaignID)
	}
	query += ` ORDER BY held_at, lead_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list held leads")
	}
	defer rows.Close() //nolint:errcheck

	var out []HeldLead
	for rows.Next() {
		var h HeldLead
		var data string
		if err := rows.Scan(&h.RunID, &h.CampaignID, &data, &h.HeldAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan held lead")
		}
		if err := json.Unmarshal([]byte(data), &h.Lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal held lead")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list held leads iterate")
}

func (s *SQLiteStore) ReleaseHeldLeads(ctx context.Context, campaignID string, leadIDs []string) error {
	if len(leadIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(leadIDs)+1)
	args = append(args, campaignID)
	for _, id := range leadIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(leadIDs)), ",")
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM held_leads WHERE campaign_id = ? AND lead_id IN (`+placeholders+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: release held leads")
}
