package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS suppressions (
	email    TEXT PRIMARY KEY,
	reason   TEXT NOT NULL,
	source   TEXT NOT NULL DEFAULT '',
	added_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL,
	operation  TEXT NOT NULL,
	units      INTEGER NOT NULL,
	unit_price DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	campaign_id TEXT NOT NULL DEFAULT '',
	mode        TEXT NOT NULL,
	verdict     TEXT NOT NULL DEFAULT '',
	queries     JSONB NOT NULL,
	summary     JSONB NOT NULL,
	leads       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS held_leads (
	campaign_id TEXT NOT NULL,
	lead_id     TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	lead        JSONB NOT NULL,
	held_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (campaign_id, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_cost_ledger_created_at ON cost_ledger(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_campaign ON runs(campaign_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertSuppression(ctx context.Context, e model.SuppressionEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO suppressions (email, reason, source, added_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET reason = EXCLUDED.reason, source = EXCLUDED.source, added_at = EXCLUDED.added_at`,
		e.Email, string(e.Reason), e.Source, e.AddedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert suppression %s", e.Email)
}

func (s *PostgresStore) ListSuppressions(ctx context.Context) ([]model.SuppressionEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT email, reason, source, added_at FROM suppressions ORDER BY email`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suppressions")
	}
	defer rows.Close()

	var out []model.SuppressionEntry
	for rows.Next() {
		var e model.SuppressionEntry
		var reason string
		if err := rows.Scan(&e.Email, &reason, &e.Source, &e.AddedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suppression")
		}
		e.Reason = model.SuppressionReason(reason)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list suppressions iterate")
}

func (s *PostgresStore) AppendCost(ctx context.Context, e model.CostEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_ledger (id, run_id, provider, operation, units, unit_price, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.RunID, e.Provider, e.Operation, e.Units, e.UnitPrice, e.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append cost %s/%s", e.Provider, e.Operation)
}

func (s *PostgresStore) ListCosts(ctx context.Context, since time.Time) ([]model.CostEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, provider, operation, units, unit_price, created_at FROM cost_ledger
		 WHERE created_at >= $1 ORDER BY created_at, id`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list costs")
	}
	defer rows.Close()

	var out []model.CostEntry
	for rows.Next() {
		var e model.CostEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Provider, &e.Operation, &e.Units, &e.UnitPrice, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list costs iterate")
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	rec, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, campaign_id, mode, verdict, queries, summary, leads, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET verdict = EXCLUDED.verdict, summary = EXCLUDED.summary, leads = EXCLUDED.leads`,
		run.ID, run.CampaignID, string(run.Mode), string(run.Summary.Verdict),
		rec.queries, rec.summary, rec.leads, run.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var (
		run                     model.Run
		mode                    string
		queries, summary, leads []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, campaign_id, mode, queries, summary, leads, created_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.CampaignID, &mode, &queries, &summary, &leads, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	run.Mode = model.RunMode(mode)
	if err := decodeRun(&run, queries, summary, leads); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first. Lead collections are not loaded.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, campaign_id, mode, queries, summary, created_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			run              model.Run
			mode             string
			queries, summary []byte
		)
		if err := rows.Scan(&run.ID, &run.CampaignID, &mode, &queries, &summary, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		run.Mode = model.RunMode(mode)
		if err := decodeRun(&run, queries, summary, nil); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) HoldLeads(ctx context.Context, runID, campaignID string, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: hold leads begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, l := range leads {
		data, err := json.Marshal(l)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal lead %s", l.ID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO held_leads (campaign_id, lead_id, run_id, lead, held_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (campaign_id, lead_id) DO UPDATE SET run_id = EXCLUDED.run_id, lead = EXCLUDED.lead, held_at = EXCLUDED.held_at`,
			campaignID, l.ID, runID, data, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: hold lead %s", l.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: hold leads commit")
}

func (s *PostgresStore) ListHeldLeads(ctx context.Context, campaignID string) ([]HeldLead, error) {
	query := `SELECT run_id, campaign_id, lead, held_at FROM held_leads`
	var args []any
	if campaignID != "" {
		query += ` WHERE campaign_id = $1`
		args = append(args, campaignID)
	}
	query += ` ORDER BY held_at, lead_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list held leads")
	}
	defer rows.Close()

	var out []HeldLead
	for rows.Next() {
		var h HeldLead
		var data []byte
		if err := rows.Scan(&h.RunID, &h.CampaignID, &data, &h.HeldAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan held lead")
		}
		if err := json.Unmarshal(data, &h.Lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal held lead")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list held leads iterate")
}

func (s *PostgresStore) ReleaseHeldLeads(ctx context.Context, campaignID string, leadIDs []string) error {
	if len(leadIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM held_leads WHERE campaign_id = $1 AND lead_id = ANY($2)`,
		campaignID, leadIDs,
	)
	return eris.Wrap(err, "postgres: release held leads")
}
