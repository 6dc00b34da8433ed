package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/doc-intake/internal/model"
)

// SQLiteStore keeps run history in a local SQLite file. It is the default
// store for the CLI.
type SQLiteStore struct {
	db *sql.DB
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// NewSQLite opens dsn with the modernc driver and applies sqlitePragmas.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", dsn)
	}
	for _, p := range sqlitePragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS intake_runs (
	id            TEXT PRIMARY KEY,
	document_name TEXT NOT NULL,
	alias         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	result        TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS intake_runs_status_idx ON intake_runs(status);
CREATE INDEX IF NOT EXISTS intake_runs_created_idx ON intake_runs(created_at);

CREATE TABLE IF NOT EXISTS intake_nodes (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES intake_runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	started_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS intake_nodes_run_idx ON intake_nodes(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "sqlite: apply schema")
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateRun(ctx context.Context, documentName, alias string) (*model.Run, error) {
	r := newRun(documentName, alias)
	if _, err := s.db.ExecContext(ctx, insertRunSQL(questionMark),
		r.ID, r.DocumentName, r.Alias, string(r.Status), r.CreatedAt, r.UpdatedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create run for %s", documentName)
	}
	return r, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return s.update(ctx, "run", runID,
		`UPDATE intake_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID)
}

// UpdateRunResult stores the summary and marks the run complete.
func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.Summary) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode summary for run %s", runID)
	}
	return s.update(ctx, "run", runID,
		`UPDATE intake_runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(blob), string(model.RunStatusComplete), time.Now().UTC(), runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := readRun(s.db.QueryRowContext(ctx, selectRunSQL(questionMark), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := listRunsQuery(filter, questionMark)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query runs")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Run{}
	for rows.Next() {
		r, err := readRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: read run row")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: query runs")
	}
	return out, nil
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	p := newPhase(runID, name)
	if _, err := s.db.ExecContext(ctx, insertPhaseSQL(questionMark),
		p.ID, p.RunID, p.Name, string(p.Status), p.StartedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create %s node for run %s", name, runID)
	}
	return p, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode node result %s", phaseID)
	}
	return s.update(ctx, "phase", phaseID,
		`UPDATE intake_nodes SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(blob), phaseID)
}

func (s *SQLiteStore) ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error) {
	rows, err := s.db.QueryContext(ctx, listPhasesSQL(questionMark), runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query nodes of run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.RunPhase{}
	for rows.Next() {
		p, err := readPhase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: read node row")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: query nodes of run %s", runID)
	}
	return out, nil
}

// update runs a single-row UPDATE and maps zero affected rows to ErrNotFound.
func (s *SQLiteStore) update(ctx context.Context, kind, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", kind, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", kind, id)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
