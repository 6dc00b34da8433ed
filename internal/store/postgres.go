package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-intake/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
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

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
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
	return &PostgresStore{pool: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS intake_runs (
	id            TEXT PRIMARY KEY,
	document_name TEXT NOT NULL,
	alias         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS intake_runs_status_idx ON intake_runs(status);
CREATE INDEX IF NOT EXISTS intake_runs_created_idx ON intake_runs(created_at DESC);

CREATE TABLE IF NOT EXISTS intake_nodes (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES intake_runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS intake_nodes_run_idx ON intake_nodes(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "postgres: apply schema")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, documentName, alias string) (*model.Run, error) {
	r := newRun(documentName, alias)
	if _, err := s.pool.Exec(ctx, insertRunSQL(dollar),
		r.ID, r.DocumentName, r.Alias, string(r.Status), r.CreatedAt, r.UpdatedAt); err != nil {
		return nil, eris.Wrapf(err, "postgres: create run for %s", documentName)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return s.update(ctx, "run", runID,
		`UPDATE intake_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.Summary) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return eris.Wrapf(err, "postgres: encode summary for run %s", runID)
	}
	return s.update(ctx, "run", runID,
		`UPDATE intake_runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		blob, string(model.RunStatusComplete), time.Now().UTC(), runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := readRun(s.pool.QueryRow(ctx, selectRunSQL(dollar), runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := listRunsQuery(filter, dollar)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query runs")
	}
	defer rows.Close()

	out := []model.Run{}
	for rows.Next() {
		r, err := readRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read run row")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: query runs")
	}
	return out, nil
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	p := newPhase(runID, name)
	if _, err := s.pool.Exec(ctx, insertPhaseSQL(dollar),
		p.ID, p.RunID, p.Name, string(p.Status), p.StartedAt); err != nil {
		return nil, eris.Wrapf(err, "postgres: create %s node for run %s", name, runID)
	}
	return p, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return eris.Wrapf(err, "postgres: encode node result %s", phaseID)
	}
	return s.update(ctx, "phase", phaseID,
		`UPDATE intake_nodes SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), blob, phaseID)
}

func (s *PostgresStore) ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error) {
	rows, err := s.pool.Query(ctx, listPhasesSQL(dollar), runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query nodes of run %s", runID)
	}
	defer rows.Close()

	out := []model.RunPhase{}
	for rows.Next() {
		p, err := readPhase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read node row")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: query nodes of run %s", runID)
	}
	return out, nil
}

func (s *PostgresStore) update(ctx context.Context, kind, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %s", kind, id)
	}
	if tag.RowsAffected() == 0 {
		return notFound(kind, id)
	}
	return nil
}
