// Package pipeline runs the document-intake task graph: parse the upload,
// extract candidate client names from its text and images, reconcile them
// against the registry and notify the matching contacts.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/doc-intake/internal/model"
)

// NodeFunc computes a node's patch from a snapshot of the fields it reads.
type NodeFunc func(ctx context.Context, s model.State) (model.Patch, error)

// Node is one task of the graph.
type Node struct {
	Name   string
	Needs  []string
	Reads  model.Field
	Writes model.Field
	Run    NodeFunc
}

// Observer is notified as nodes start and finish. Calls arrive from the node
// goroutines and may be concurrent.
type Observer interface {
	NodeStarted(name string)
	NodeFinished(result model.NodeResult)
}

type nopObserver struct{}

func (nopObserver) NodeStarted(string)             {}
func (nopObserver) NodeFinished(model.NodeResult) {}

// Graph is a validated, immutable DAG of nodes.
type Graph struct {
	nodes []Node
	index map[string]int
	order []string
}

// NewGraph validates nodes and returns the graph. Validation fails on
// duplicate or unknown names, cycles, a field with more than one writer and
// a read that no ancestor (or the seed) provides.
func NewGraph(nodes ...Node) (*Graph, error) {
	g := &Graph{
		nodes: make([]Node, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	copy(g.nodes, nodes)

	for i, n := range g.nodes {
		if n.Name == "" {
			return nil, eris.Errorf("pipeline: node %d has no name", i)
		}
		if n.Run == nil {
			return nil, eris.Errorf("pipeline: node %s has no func", n.Name)
		}
		if _, dup := g.index[n.Name]; dup {
			return nil, eris.Errorf("pipeline: duplicate node %s", n.Name)
		}
		g.index[n.Name] = i
	}

	writers := make(map[model.Field]string)
	for _, n := range g.nodes {
		for _, need := range n.Needs {
			if _, ok := g.index[need]; !ok {
				return nil, eris.Errorf("pipeline: node %s needs unknown node %s", n.Name, need)
			}
		}
		if n.Writes&model.SeedFields != 0 {
			return nil, eris.Errorf("pipeline: node %s writes seed fields %s", n.Name, n.Writes&model.SeedFields)
		}
		var err error
		n.Writes.Each(func(f model.Field) {
			if prev, ok := writers[f]; ok && err == nil {
				err = eris.Errorf("pipeline: field %s written by both %s and %s", f, prev, n.Name)
			}
			writers[f] = n.Name
		})
		if err != nil {
			return nil, err
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	// provided[n] is every field available to n: the seed plus whatever its
	// ancestors write. Topological order guarantees needs are filled first.
	provided := make(map[string]model.Field, len(g.nodes))
	for _, name := range g.order {
		n := g.nodes[g.index[name]]
		avail := model.SeedFields
		for _, need := range n.Needs {
			avail |= provided[need] | g.nodes[g.index[need]].Writes
		}
		provided[name] = avail
		if missing := n.Reads &^ avail; missing != 0 {
			return nil, eris.Errorf("pipeline: node %s reads %s which no ancestor writes", name, missing)
		}
	}

	return g, nil
}

// topoSort orders nodes with Kahn's algorithm, breaking ties by declaration
// order.
func (g *Graph) topoSort() ([]string, error) {
	indegree := make([]int, len(g.nodes))
	dependents := make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		indegree[i] = len(n.Needs)
		for _, need := range n.Needs {
			j := g.index[need]
			dependents[j] = append(dependents[j], i)
		}
	}

	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, g.nodes[i].Name)
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, eris.New("pipeline: graph has a cycle")
	}
	return order, nil
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Order returns the node names in topological order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Execute runs every node once, each as soon as all of its needs have
// finished, and returns the final state with one result per node in
// declaration order. A node that errors, panics or writes fields it did not
// declare is degraded: its patch is dropped and its dependents still run.
func (g *Graph) Execute(ctx context.Context, seed model.State, obs Observer) (model.State, []model.NodeResult) {
	if obs == nil {
		obs = nopObserver{}
	}

	done := make([]chan struct{}, len(g.nodes))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var (
		mu      sync.Mutex
		state   = seed
		results = make([]model.NodeResult, len(g.nodes))
	)

	var eg errgroup.Group
	for i, n := range g.nodes {
		eg.Go(func() error {
			defer close(done[i])
			for _, need := range n.Needs {
				<-done[g.index[need]]
			}

			mu.Lock()
			view := model.State{}.Apply(model.Patch{Fields: n.Reads, State: state})
			mu.Unlock()

			obs.NodeStarted(n.Name)
			start := time.Now()
			patch, err := runNode(ctx, n, view)
			if err == nil {
				if extra := patch.Fields &^ n.Writes; extra != 0 {
					err = eris.Errorf("wrote undeclared fields %s", extra)
				}
			}

			res := model.NodeResult{
				Node:       n.Name,
				Status:     model.NodeStatusOK,
				DurationMs: time.Since(start).Milliseconds(),
				TokenUsage: patch.Usage,
			}
			if err != nil {
				res.Status = model.NodeStatusDegraded
				res.Reason = err.Error()
				zap.L().Warn("pipeline: node degraded",
					zap.String("node", n.Name),
					zap.Int64("duration_ms", res.DurationMs),
					zap.Error(err),
				)
			} else {
				mu.Lock()
				state = state.Apply(patch)
				mu.Unlock()
				zap.L().Debug("pipeline: node complete",
					zap.String("node", n.Name),
					zap.Int64("duration_ms", res.DurationMs),
					zap.Stringer("fields", patch.Fields),
				)
			}

			results[i] = res
			obs.NodeFinished(res)
			return nil
		})
	}
	_ = eg.Wait()

	return state, results
}

func runNode(ctx context.Context, n Node, s model.State) (patch model.Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			patch = model.NoOp
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return n.Run(ctx, s)
}
