package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-intake/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "deck.docx", "AI Agent")
	require.NoError(t, err)
	assert.Len(t, run.ID, 26)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "deck.docx", got.DocumentName)
	assert.Equal(t, "AI Agent", got.Alias)
	assert.Nil(t, got.Result)

	summary := &model.Summary{
		RunID:             run.ID,
		DocumentName:      "deck.docx",
		VerifiedClients:   []string{"IBM"},
		ConsolidatedNames: []string{"Acme Labs", "IBM"},
		EmailSent:         true,
		Outcomes: []model.Outcome{
			{Client: "IBM", Email: "ann@ibm.example", Success: true, Detail: "Email sent successfully to ann@ibm.example", Attempts: 1},
		},
	}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, summary))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, summary.ConsolidatedNames, got.Result.ConsolidatedNames)
	assert.Equal(t, summary.Outcomes, got.Result.Outcomes)
	assert.True(t, got.Result.EmailSent)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "a.pdf", "")
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)

	assert.ErrorIs(t, st.UpdateRunStatus(ctx, "nope", model.RunStatusFailed), ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a.pdf", "b.pdf", "c.docx"} {
		run, err := st.CreateRun(ctx, name, "")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, st.UpdateRunStatus(ctx, ids[1], model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c.docx", all[0].DocumentName)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, ids[1], complete[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b.pdf", page[0].DocumentName)

	none, err := st.ListRuns(ctx, RunFilter{Status: "bogus"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLite_Phases(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "a.pdf", "")
	require.NoError(t, err)

	p1, err := st.CreatePhase(ctx, run.ID, "process_document")
	require.NoError(t, err)
	p2, err := st.CreatePhase(ctx, run.ID, "extract_images")
	require.NoError(t, err)

	require.NoError(t, st.CompletePhase(ctx, p1.ID, &model.PhaseResult{
		Name: "process_document", Status: model.PhaseStatusComplete, Duration: 12,
	}))
	require.NoError(t, st.CompletePhase(ctx, p2.ID, &model.PhaseResult{
		Name: "extract_images", Status: model.PhaseStatusDegraded, Error: "unsupported document format",
	}))

	phases, err := st.ListPhases(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, phases, 2)

	byName := map[string]model.RunPhase{}
	for _, p := range phases {
		byName[p.Name] = p
	}
	assert.Equal(t, model.PhaseStatusComplete, byName["process_document"].Status)
	assert.Equal(t, int64(12), byName["process_document"].Result.Duration)
	assert.Equal(t, model.PhaseStatusDegraded, byName["extract_images"].Status)
	assert.Equal(t, "unsupported document format", byName["extract_images"].Result.Error)

	err = st.CompletePhase(ctx, "nope", &model.PhaseResult{Status: model.PhaseStatusComplete})
	assert.ErrorIs(t, err, ErrNotFound)
}
