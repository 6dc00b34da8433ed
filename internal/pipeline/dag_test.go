package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-intake/internal/model"
)

func writeText(names ...string) NodeFunc {
	return func(context.Context, model.State) (model.Patch, error) {
		return model.Patch{Fields: model.FieldTextDerivedNames, State: model.State{TextDerivedNames: names}}, nil
	}
}

func writeImages(delay time.Duration, names ...string) NodeFunc {
	return func(ctx context.Context, _ model.State) (model.Patch, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.NoOp, ctx.Err()
		}
		return model.Patch{Fields: model.FieldImageDerivedNames, State: model.State{ImageDerivedNames: names}}, nil
	}
}

// recordingObserver keeps the order nodes finished in.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []model.NodeResult
}

func (o *recordingObserver) NodeStarted(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, name)
}

func (o *recordingObserver) NodeFinished(r model.NodeResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func TestExecute_JoinWaitsForAllNeeds(t *testing.T) {
	var seenImages []string
	g, err := NewGraph(
		Node{Name: "text", Writes: model.FieldTextDerivedNames, Run: writeText("IBM")},
		Node{Name: "images", Writes: model.FieldImageDerivedNames, Run: writeImages(50*time.Millisecond, "Acme Labs")},
		Node{
			Name:   "join",
			Needs:  []string{"text", "images"},
			Reads:  model.FieldTextDerivedNames | model.FieldImageDerivedNames,
			Writes: model.FieldConsolidatedNames,
			Run: func(_ context.Context, s model.State) (model.Patch, error) {
				seenImages = s.ImageDerivedNames
				return model.Patch{
					Fields: model.FieldConsolidatedNames,
					State:  model.State{ConsolidatedNames: append(append([]string{}, s.ImageDerivedNames...), s.TextDerivedNames...)},
				}, nil
			},
		},
	)
	require.NoError(t, err)

	obs := &recordingObserver{}
	final, results := g.Execute(context.Background(), model.State{}, obs)

	assert.Equal(t, []string{"Acme Labs"}, seenImages)
	assert.Equal(t, []string{"Acme Labs", "IBM"}, final.ConsolidatedNames)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, model.NodeStatusOK, r.Status, r.Node)
	}
	require.Len(t, obs.finished, 3)
	assert.Equal(t, "join", obs.finished[2].Node)
}

func TestExecute_ReadsOnlyDeclaredFields(t *testing.T) {
	var seen model.State
	g, err := NewGraph(
		Node{Name: "text", Writes: model.FieldTextDerivedNames, Run: writeText("IBM")},
		Node{
			Name:   "reader",
			Needs:  []string{"text"},
			Reads:  model.FieldDocumentName,
			Writes: model.FieldVerifiedClients,
			Run: func(_ context.Context, s model.State) (model.Patch, error) {
				seen = s
				return model.NoOp, nil
			},
		},
	)
	require.NoError(t, err)

	g.Execute(context.Background(), model.State{DocumentName: "a.pdf", SenderAlias: "Bot"}, nil)

	assert.Equal(t, "a.pdf", seen.DocumentName)
	assert.Empty(t, seen.SenderAlias)
	assert.Empty(t, seen.TextDerivedNames)
}

func TestExecute_ErrorDegradesAndContinues(t *testing.T) {
	var ran bool
	g, err := NewGraph(
		Node{
			Name:   "text",
			Writes: model.FieldTextDerivedNames,
			Run: func(context.Context, model.State) (model.Patch, error) {
				return model.Patch{Usage: model.TokenUsage{InputTokens: 10}}, errors.New("llm unavailable")
			},
		},
		Node{
			Name:   "after",
			Needs:  []string{"text"},
			Reads:  model.FieldTextDerivedNames,
			Writes: model.FieldConsolidatedNames,
			Run: func(_ context.Context, s model.State) (model.Patch, error) {
				ran = true
				return model.Patch{Fields: model.FieldConsolidatedNames, State: model.State{ConsolidatedNames: s.TextDerivedNames}}, nil
			},
		},
	)
	require.NoError(t, err)

	final, results := g.Execute(context.Background(), model.State{}, nil)

	assert.True(t, ran)
	assert.Empty(t, final.TextDerivedNames)
	assert.Empty(t, final.ConsolidatedNames)
	assert.True(t, results[0].Degraded())
	assert.Equal(t, "llm unavailable", results[0].Reason)
	assert.Equal(t, 10, results[0].TokenUsage.InputTokens)
	assert.False(t, results[1].Degraded())
}

func TestExecute_PanicRecovered(t *testing.T) {
	g, err := NewGraph(
		Node{
			Name:   "boom",
			Writes: model.FieldTextDerivedNames,
			Run: func(context.Context, model.State) (model.Patch, error) {
				panic("nil map")
			},
		},
		Node{Name: "images", Writes: model.FieldImageDerivedNames, Run: writeImages(0, "Acme Labs")},
	)
	require.NoError(t, err)

	final, results := g.Execute(context.Background(), model.State{}, nil)

	assert.True(t, results[0].Degraded())
	assert.Contains(t, results[0].Reason, "panic: nil map")
	assert.Equal(t, []string{"Acme Labs"}, final.ImageDerivedNames)
}

func TestExecute_UndeclaredWriteRejected(t *testing.T) {
	g, err := NewGraph(
		Node{
			Name:   "sneaky",
			Writes: model.FieldTextDerivedNames,
			Run: func(context.Context, model.State) (model.Patch, error) {
				return model.Patch{
					Fields: model.FieldTextDerivedNames | model.FieldEmailSent,
					State:  model.State{TextDerivedNames: []string{"IBM"}, EmailSent: true},
				}, nil
			},
		},
	)
	require.NoError(t, err)

	final, results := g.Execute(context.Background(), model.State{}, nil)

	assert.False(t, final.EmailSent)
	assert.Empty(t, final.TextDerivedNames)
	assert.True(t, results[0].Degraded())
	assert.Contains(t, results[0].Reason, "wrote undeclared fields")
}

func TestExecute_SeedPreserved(t *testing.T) {
	g, err := NewGraph(Node{Name: "text", Writes: model.FieldTextDerivedNames, Run: writeText("IBM")})
	require.NoError(t, err)

	seed := model.State{DocumentName: "deck.docx", DocumentBytes: []byte("PK"), SenderAlias: "Ops"}
	final, _ := g.Execute(context.Background(), seed, nil)

	assert.Equal(t, "deck.docx", final.DocumentName)
	assert.Equal(t, []byte("PK"), final.DocumentBytes)
	assert.Equal(t, "Ops", final.SenderAlias)
	assert.Equal(t, []string{"IBM"}, final.TextDerivedNames)
}

func TestExecute_CanceledContextStillCompletes(t *testing.T) {
	g, err := NewGraph(
		Node{Name: "images", Writes: model.FieldImageDerivedNames, Run: writeImages(time.Hour, "never")},
		Node{
			Name:   "after",
			Needs:  []string{"images"},
			Writes: model.FieldConsolidatedNames,
			Run: func(context.Context, model.State) (model.Patch, error) {
				return model.Patch{Fields: model.FieldConsolidatedNames, State: model.State{ConsolidatedNames: []string{}}}, nil
			},
		},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, results := g.Execute(ctx, model.State{}, nil)
	require.Len(t, results, 2)
	assert.True(t, results[0].Degraded())
	assert.Contains(t, results[0].Reason, "context canceled")
	assert.False(t, results[1].Degraded())
}

func TestNewGraph_Validation(t *testing.T) {
	noop := func(context.Context, model.State) (model.Patch, error) { return model.NoOp, nil }

	tests := []struct {
		name    string
		nodes   []Node
		wantErr string
	}{
		{
			name:    "duplicate name",
			nodes:   []Node{{Name: "a", Run: noop}, {Name: "a", Run: noop}},
			wantErr: "duplicate node a",
		},
		{
			name:    "missing name",
			nodes:   []Node{{Run: noop}},
			wantErr: "has no name",
		},
		{
			name:    "missing func",
			nodes:   []Node{{Name: "a"}},
			wantErr: "has no func",
		},
		{
			name:    "unknown need",
			nodes:   []Node{{Name: "a", Needs: []string{"ghost"}, Run: noop}},
			wantErr: "needs unknown node ghost",
		},
		{
			name: "cycle",
			nodes: []Node{
				{Name: "a", Needs: []string{"c"}, Run: noop},
				{Name: "b", Needs: []string{"a"}, Run: noop},
				{Name: "c", Needs: []string{"b"}, Run: noop},
			},
			wantErr: "cycle",
		},
		{
			name: "two writers",
			nodes: []Node{
				{Name: "a", Writes: model.FieldTextDerivedNames, Run: noop},
				{Name: "b", Writes: model.FieldTextDerivedNames, Run: noop},
			},
			wantErr: "written by both a and b",
		},
		{
			name:    "writes seed",
			nodes:   []Node{{Name: "a", Writes: model.FieldDocumentBytes, Run: noop}},
			wantErr: "writes seed fields document_bytes",
		},
		{
			name: "read without ancestor writer",
			nodes: []Node{
				{Name: "a", Writes: model.FieldTextDerivedNames, Run: noop},
				{Name: "b", Reads: model.FieldTextDerivedNames, Run: noop},
			},
			wantErr: "node b reads text_derived_names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.nodes...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGraphOrder(t *testing.T) {
	noop := func(context.Context, model.State) (model.Patch, error) { return model.NoOp, nil }
	g, err := NewGraph(
		Node{Name: "c", Needs: []string{"a", "b"}, Run: noop},
		Node{Name: "a", Run: noop},
		Node{Name: "b", Needs: []string{"a"}, Run: noop},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.Order())
	assert.Len(t, g.Nodes(), 3)
	assert.Equal(t, "c", g.Nodes()[0].Name)
}
