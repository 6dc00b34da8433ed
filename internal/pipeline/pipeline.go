package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/monitoring"
	"github.com/sells-group/doc-intake/internal/store"
)

// DefaultAlias is the sender display name used when a run names none.
const DefaultAlias = "AI Agent"

// Input is one uploaded document.
type Input struct {
	Name  string
	Data  []byte
	Alias string
}

// Pipeline runs the intake graph for one document at a time and records
// each run in the store.
type Pipeline struct {
	graph        *Graph
	store        store.Store
	metrics      *monitoring.Metrics
	audit        AuditSink
	previewLen   int
	defaultAlias string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records node and run metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAudit dumps the stage name lists of every run to sink.
func WithAudit(sink AuditSink) Option {
	return func(p *Pipeline) { p.audit = sink }
}

// WithPreviewLength sets how many runes of text the summary keeps.
func WithPreviewLength(n int) Option {
	return func(p *Pipeline) { p.previewLen = n }
}

// WithDefaultAlias sets the sender alias for runs that give none.
func WithDefaultAlias(alias string) Option {
	return func(p *Pipeline) {
		if alias != "" {
			p.defaultAlias = alias
		}
	}
}

// New builds the intake graph from deps.
func New(st store.Store, deps Deps, opts ...Option) (*Pipeline, error) {
	g, err := NewIntakeGraph(deps)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build graph")
	}
	p := &Pipeline{
		graph:        g,
		store:        st,
		previewLen:   DefaultPreviewLength,
		defaultAlias: DefaultAlias,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Graph returns the graph the pipeline executes.
func (p *Pipeline) Graph() *Graph { return p.graph }

// Run processes one document end to end. Only a failure to create the run
// record is returned; node failures are reported in the summary.
func (p *Pipeline) Run(ctx context.Context, in Input) (*model.Summary, error) {
	run, err := p.Start(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, run.ID, in), nil
}

// Start creates the run record. Callers that want to answer before the run
// finishes call Start, then Process in the background.
func (p *Pipeline) Start(ctx context.Context, in Input) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx, in.Name, p.alias(in))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// Process executes the graph for a run created by Start and persists the
// summary. A run whose context ends before the graph finishes is marked
// failed.
func (p *Pipeline) Process(ctx context.Context, runID string, in Input) *model.Summary {
	log := zap.L().With(zap.String("run_id", runID), zap.String("document", in.Name))
	log.Info("pipeline: starting run", zap.Int("bytes", len(in.Data)))

	seed := model.State{
		DocumentBytes: in.Data,
		DocumentName:  in.Name,
		SenderAlias:   p.alias(in),
	}

	obs := &phaseObserver{
		ctx:     context.WithoutCancel(ctx),
		store:   p.store,
		metrics: p.metrics,
		runID:   runID,
		phases:  make(map[string]*model.RunPhase),
	}
	final, results := p.graph.Execute(ctx, seed, obs)

	status := model.RunStatusComplete
	if ctx.Err() != nil {
		status = model.RunStatusFailed
	}

	// Bookkeeping outlives a canceled run so the failure is recorded.
	bg := context.WithoutCancel(ctx)

	if p.audit != nil {
		if err := p.audit.Write(bg, runID, final); err != nil {
			log.Warn("pipeline: audit dump failed", zap.Error(err))
		}
	}

	summary := BuildSummary(runID, final, results, p.previewLen)
	if err := p.store.UpdateRunResult(bg, runID, summary); err != nil {
		log.Warn("pipeline: failed to persist result", zap.Error(err))
	}
	if status == model.RunStatusFailed {
		if err := p.store.UpdateRunStatus(bg, runID, status); err != nil {
			log.Warn("pipeline: failed to update status", zap.Error(err))
		}
	}
	p.metrics.ObserveRun(status, final.Outcomes)

	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Strings("verified_clients", summary.VerifiedClients),
		zap.Bool("email_sent", summary.EmailSent),
		zap.Int("degraded_nodes", len(summary.Degraded)),
		zap.Float64("cost_usd", summary.TokenUsage.Cost),
	)
	return summary
}

func (p *Pipeline) alias(in Input) string {
	if a := strings.TrimSpace(in.Alias); a != "" {
		return a
	}
	return p.defaultAlias
}

// phaseObserver persists one phase row per node and feeds the metrics.
type phaseObserver struct {
	ctx     context.Context
	store   store.Store
	metrics *monitoring.Metrics
	runID   string

	mu     sync.Mutex
	phases map[string]*model.RunPhase
}

func (o *phaseObserver) NodeStarted(name string) {
	phase, err := o.store.CreatePhase(o.ctx, o.runID, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to create phase",
			zap.String("run_id", o.runID),
			zap.String("phase", name),
			zap.Error(err),
		)
		return
	}
	o.mu.Lock()
	o.phases[name] = phase
	o.mu.Unlock()
}

func (o *phaseObserver) NodeFinished(r model.NodeResult) {
	o.metrics.ObserveNode(r)

	o.mu.Lock()
	phase := o.phases[r.Node]
	o.mu.Unlock()
	if phase == nil {
		return
	}

	result := &model.PhaseResult{
		Name:       r.Node,
		Status:     model.PhaseStatusComplete,
		Duration:   r.DurationMs,
		TokenUsage: r.TokenUsage,
	}
	if r.Degraded() {
		result.Status = model.PhaseStatusDegraded
		result.Error = r.Reason
	}
	if err := o.store.CompletePhase(o.ctx, phase.ID, result); err != nil {
		zap.L().Warn("pipeline: failed to complete phase",
			zap.String("run_id", o.runID),
			zap.String("phase", r.Node),
			zap.Error(err),
		)
	}
}
