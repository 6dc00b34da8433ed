// Package store persists intake runs and their per-node phases.
package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-intake/internal/model"
)

// ErrNotFound is returned when a run or phase does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for intake runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, documentName, alias string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.Summary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Column lists shared by both drivers, in scan order.
const (
	runColumns   = `id, document_name, alias, status, result, created_at, updated_at`
	phaseColumns = `id, run_id, name, status, result, started_at`
)

// newRun returns a running run with a lexically sortable ULID, so ID order
// follows creation order.
func newRun(documentName, alias string) *model.Run {
	now := time.Now().UTC()
	return &model.Run{
		ID:           ulid.Make().String(),
		DocumentName: documentName,
		Alias:        alias,
		Status:       model.RunStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newPhase(runID, name string) *model.RunPhase {
	return &model.RunPhase{
		ID:        uuid.New().String(),
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// placeholder spells the n-th (1-based) bind parameter for a driver.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func binds(ph placeholder, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = ph(i + 1)
	}
	return strings.Join(parts, ", ")
}

func insertRunSQL(ph placeholder) string {
	return `INSERT INTO intake_runs (id, document_name, alias, status, created_at, updated_at) VALUES (` + binds(ph, 6) + `)`
}

func selectRunSQL(ph placeholder) string {
	return `SELECT ` + runColumns + ` FROM intake_runs WHERE id = ` + ph(1)
}

func insertPhaseSQL(ph placeholder) string {
	return `INSERT INTO intake_nodes (id, run_id, name, status, started_at) VALUES (` + binds(ph, 5) + `)`
}

func listPhasesSQL(ph placeholder) string {
	return `SELECT ` + phaseColumns + ` FROM intake_nodes WHERE run_id = ` + ph(1) + ` ORDER BY started_at, name`
}

// listRunsQuery renders the ListRuns statement, newest first.
func listRunsQuery(f RunFilter, ph placeholder) (string, []any) {
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + runColumns + ` FROM intake_runs`)
	if f.Status != "" {
		sb.WriteString(` WHERE status = ` + bind(string(f.Status)))
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ` + bind(listLimit(f)))
	if f.Offset > 0 {
		sb.WriteString(` OFFSET ` + bind(f.Offset))
	}
	return sb.String(), args
}

// row is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

// readRun scans runColumns. Scan errors are returned unwrapped so callers can
// match the driver's no-rows sentinel.
func readRun(r row) (*model.Run, error) {
	var (
		run  model.Run
		blob []byte
	)
	if err := r.Scan(&run.ID, &run.DocumentName, &run.Alias, &run.Status, &blob, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	run.Result, err = decodeSummary(blob)
	return &run, err
}

func readPhase(r row) (*model.RunPhase, error) {
	var (
		p    model.RunPhase
		blob []byte
	)
	if err := r.Scan(&p.ID, &p.RunID, &p.Name, &p.Status, &blob, &p.StartedAt); err != nil {
		return nil, err
	}
	var err error
	p.Result, err = decodePhaseResult(blob)
	return &p, err
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func decodeSummary(raw []byte) (*model.Summary, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s model.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal summary")
	}
	return &s, nil
}

func decodePhaseResult(raw []byte) (*model.PhaseResult, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var r model.PhaseResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal phase result")
	}
	return &r, nil
}
