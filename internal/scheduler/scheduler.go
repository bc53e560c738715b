// Package scheduler drives one workflow run across a fixed worker pool.
// Nodes enter a ready channel once every upstream dependency has reached
// a terminal status; workers pull from it, decide whether the node runs
// or is bypassed, execute it, and unlock its dependents. A node failure
// never cancels the run: independent branches keep executing and only
// the failed node's own downstream is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/nodes"
	"github.com/vk/flowgridgo/internal/resolve"
	"github.com/vk/flowgridgo/internal/runstore"
)

// DefaultWorkers bounds node concurrency when the caller does not.
const DefaultWorkers = 4

// Options configure a Scheduler.
type Options struct {
	// Workers caps how many nodes execute concurrently. Zero means
	// DefaultWorkers.
	Workers int

	// Registry supplies the node executors. Nil means the built-in set.
	Registry *nodes.Registry

	// Caps are the capabilities executors run against. Nil means
	// production defaults with no model provider.
	Caps *capability.Set
}

// Scheduler executes validated workflows. It holds no per-run state and
// is safe for concurrent use.
type Scheduler struct {
	workers  int
	registry *nodes.Registry
	caps     *capability.Set
}

func New(opts Options) *Scheduler {
	s := &Scheduler{workers: opts.Workers, registry: opts.Registry, caps: opts.Caps}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	if s.registry == nil {
		s.registry = nodes.Default()
	}
	if s.caps == nil {
		s.caps = (&capability.Set{}).WithDefaults()
	}
	return s
}

// Run executes every node of wf and records terminal results on run.
// The workflow must already have passed validation: scheduling trusts
// the graph to be acyclic with references pointing at ancestors.
func (s *Scheduler) Run(ctx context.Context, wf *model.Workflow, run *runstore.Run, input map[string]any) {
	logger := ctxlog.FromContext(ctx)
	st := newExecState(wf, run, input)
	if len(st.order) == 0 {
		return
	}

	rootCount := 0
	for _, en := range st.order {
		if en.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", en.node.ID)
			st.ready <- en
			rootCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootCount)

	st.wg.Add(len(st.order))
	workers := s.workers
	if workers > len(st.order) {
		workers = len(st.order)
	}
	logger.Debug("Starting worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		go s.worker(ctx, st, i)
	}

	st.wg.Wait()
	close(st.ready)
}

// worker is the core processing loop for a single concurrent worker.
func (s *Scheduler) worker(ctx context.Context, st *execState, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)
	for en := range st.ready {
		s.dispatch(ctx, st, en, workerID)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// dispatch settles one ready node: gate it, run it if the gate passes,
// record the terminal result, and unlock dependents. The node's output
// lands in the scope before any dependent can observe the decrement.
func (s *Scheduler) dispatch(ctx context.Context, st *execState, en *execNode, workerID int) {
	defer st.wg.Done()
	nodeID := en.node.ID
	logger := ctxlog.FromContext(ctx).With("workerID", workerID, "nodeID", nodeID)

	result := runstore.NodeResult{NodeID: nodeID, StartedAt: time.Now().UTC()}

	if ctx.Err() != nil {
		logger.Warn("Run context expired before node started.", "error", ctx.Err())
		result.Status = model.NodeFailed
		result.Err = cancelErr(nodeID, ctx.Err())
	} else if status, reason := st.gate(en); status != "" {
		if status == model.NodeSkippedDownstream {
			logger.Warn("Skipping node due to upstream failure.", "reason", reason)
		} else {
			logger.Info("Skipping node.", "reason", reason)
		}
		result.Status = status
		result.Err = reason
	} else {
		logger.Debug("Worker picked up node for execution.")
		s.execute(ctx, st, en, &result, logger)
	}

	result.EndedAt = time.Now().UTC()
	if result.Status == model.NodeSucceeded {
		st.scope.Record(nodeID, result.Output)
	}
	if err := st.run.Record(result); err != nil {
		logger.Error("Failed to record node result.", "error", err)
	}

	for _, dep := range en.dependents {
		if dep.depCount.Add(-1) == 0 {
			logger.Debug("Unlocking dependent node.", "dependentID", dep.node.ID)
			st.ready <- dep
		}
	}
}

// execute runs the node's executor under its own timeout, if declared.
func (s *Scheduler) execute(ctx context.Context, st *execState, en *execNode, result *runstore.NodeResult, logger *slog.Logger) {
	n := en.node

	execCtx := ctxlog.WithLogger(ctx, logger)
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, n.Timeout)
		defer cancel()
	}

	fn, ok := s.registry.Exec(n.Kind)
	if !ok {
		result.Status = model.NodeFailed
		result.Err = model.NewExecutionError(model.ExecConstruction, n.ID,
			fmt.Errorf("no executor registered for kind %q", n.Kind))
		return
	}

	logger.Info("▶️ Executing node.", "kind", n.Kind)
	res, err := fn(execCtx, &nodes.Request{Node: n, Scope: st.scope, RunInput: st.input, Caps: s.caps})
	switch {
	case err == nil:
		result.Status = model.NodeSucceeded
		result.Output = res.Output
		result.Branch = res.Branch
		result.Usage = res.Usage
		logger.Info("✅ Node finished.", "kind", n.Kind)
	case errors.Is(err, nodes.ErrNoEntriesResolved):
		if failed, ok := st.failedDep(en); ok {
			result.Status = model.NodeSkippedDownstream
			result.Err = fmt.Errorf("upstream node %q did not succeed", failed)
		} else {
			result.Status = model.NodeSkipped
			result.Err = err
		}
		logger.Info("Skipping output node, nothing to collect.")
	default:
		result.Status = model.NodeFailed
		result.Err = err
		logger.Error("Node execution failed.", "error", err)
	}
}

// cancelErr wraps a context error for a node that never got to start.
func cancelErr(nodeID string, err error) error {
	kind := model.ExecCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = model.ExecTimeout
	}
	return model.NewExecutionError(kind, nodeID, err)
}

// execNode is one node's scheduling state.
type execNode struct {
	node     *model.Node
	depCount atomic.Int32

	// incoming edges gate the node; refs name the nodes its expressions
	// read; deps is the union of both, deduplicated.
	incoming   []model.Edge
	refs       []string
	deps       []string
	dependents []*execNode
}

// execState is the per-run working set shared by the worker pool.
type execState struct {
	run   *runstore.Run
	scope *resolve.Scope
	input map[string]any
	byID  map[string]*execNode
	order []*execNode
	ready chan *execNode
	wg    sync.WaitGroup
}

func newExecState(wf *model.Workflow, run *runstore.Run, input map[string]any) *execState {
	st := &execState{
		run:   run,
		scope: resolve.NewScope(),
		input: input,
		byID:  make(map[string]*execNode, len(wf.Nodes)),
		ready: make(chan *execNode, len(wf.Nodes)),
	}
	for _, n := range wf.Nodes {
		en := &execNode{node: n}
		st.byID[n.ID] = en
		st.order = append(st.order, en)
	}
	for _, e := range wf.Edges {
		if en, ok := st.byID[e.To]; ok {
			en.incoming = append(en.incoming, e)
		}
	}
	for _, en := range st.order {
		seenDeps := make(map[string]struct{})
		for _, e := range en.incoming {
			if _, ok := st.byID[e.From]; !ok {
				continue
			}
			if _, dup := seenDeps[e.From]; !dup {
				seenDeps[e.From] = struct{}{}
				en.deps = append(en.deps, e.From)
			}
		}
		seenRefs := make(map[string]struct{})
		for _, ref := range en.node.Refs() {
			if _, ok := st.byID[ref.Node]; !ok || ref.Node == en.node.ID {
				continue
			}
			if _, dup := seenRefs[ref.Node]; !dup {
				seenRefs[ref.Node] = struct{}{}
				en.refs = append(en.refs, ref.Node)
			}
			if _, dup := seenDeps[ref.Node]; !dup {
				seenDeps[ref.Node] = struct{}{}
				en.deps = append(en.deps, ref.Node)
			}
		}
		en.depCount.Store(int32(len(en.deps)))
	}
	for _, en := range st.order {
		for _, id := range en.deps {
			st.byID[id].dependents = append(st.byID[id].dependents, en)
		}
	}
	return st
}

// gate decides whether a ready node runs or is bypassed, and with which
// status. Every dependency is terminal by the time a node is ready, so
// the decision is final. Output nodes are exempt from the failure
// cascade and the missing-source skip: they join whatever did succeed
// and drop the rest.
func (st *execState) gate(en *execNode) (model.NodeStatus, error) {
	isOutput := en.node.Kind == model.KindOutput
	failed, hasFailed := st.failedDep(en)

	if hasFailed && !isOutput {
		return model.NodeSkippedDownstream, fmt.Errorf("upstream node %q did not succeed", failed)
	}

	if len(en.incoming) > 0 && !st.anyActiveEdge(en) {
		if hasFailed {
			return model.NodeSkippedDownstream, fmt.Errorf("upstream node %q did not succeed", failed)
		}
		return model.NodeSkipped, errors.New("no incoming edge is active")
	}

	if !isOutput {
		for _, src := range en.refs {
			if !st.scope.Has(src) {
				return model.NodeSkipped, fmt.Errorf("source node %q produced no output", src)
			}
		}
	}

	return "", nil
}

// anyActiveEdge reports whether at least one incoming edge carries the
// node forward: its source succeeded and, for labeled edges, the source
// selected that branch.
func (st *execState) anyActiveEdge(en *execNode) bool {
	for _, edge := range en.incoming {
		r, ok := st.run.Result(edge.From)
		if !ok || r.Status != model.NodeSucceeded {
			continue
		}
		if edge.Branch != "" && r.Branch != edge.Branch {
			continue
		}
		return true
	}
	return false
}

// failedDep returns a dependency that failed or was skipped by a
// failure, if any.
func (st *execState) failedDep(en *execNode) (string, bool) {
	for _, id := range en.deps {
		if r, ok := st.run.Result(id); ok {
			if r.Status == model.NodeFailed || r.Status == model.NodeSkippedDownstream {
				return id, true
			}
		}
	}
	return "", false
}
