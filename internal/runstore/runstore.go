// Package runstore holds the mutable state of one workflow run: an
// append-only record of node results plus the run's own lifecycle. It
// deliberately knows nothing about graph structure; the scheduler owns
// that, and the separation keeps state writes from ever blocking
// structure reads.
//
// Results are write-once per node. Multiple workers record concurrently,
// but each node is dispatched exactly once, so a second write for the
// same id is a scheduling bug and is reported as an error.
package runstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/model"
)

// NodeResult is the terminal record of one node in a run.
type NodeResult struct {
	NodeID string
	Status model.NodeStatus

	// Output is the node's declared output object. Only succeeded nodes
	// carry one.
	Output cty.Value

	// Err explains failures and skips. Skipped nodes carry the reason
	// here, failed nodes the execution error.
	Err error

	// Branch is the label a condition node selected.
	Branch string

	// Usage is provider token accounting, for llm nodes.
	Usage *model.TokenUsage

	StartedAt time.Time
	EndedAt   time.Time
}

func (r NodeResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Run is the state of one execution, created when the run starts and
// finalized exactly once when it ends.
type Run struct {
	ID              string
	WorkflowID      string
	WorkflowVersion int
	StartedAt       time.Time

	mu      sync.RWMutex
	status  model.RunStatus
	endedAt time.Time
	err     error
	order   []string
	results map[string]NodeResult
	outputs map[string]cty.Value
}

// New creates a running Run with a fresh id.
func New(workflowID string, version int) *Run {
	return &Run{
		ID:              uuid.NewString(),
		WorkflowID:      workflowID,
		WorkflowVersion: version,
		StartedAt:       time.Now().UTC(),
		status:          model.RunRunning,
		results:         make(map[string]NodeResult),
	}
}

// Record stores a node's terminal result. Recording the same node twice
// is an error and leaves the first record in place.
func (r *Run) Record(res NodeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[res.NodeID]; exists {
		return fmt.Errorf("node %q already has a recorded result", res.NodeID)
	}
	r.results[res.NodeID] = res
	r.order = append(r.order, res.NodeID)
	return nil
}

// Result returns the recorded result for a node, if any.
func (r *Run) Result(nodeID string) (NodeResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[nodeID]
	return res, ok
}

// Results returns every recorded result in completion order.
func (r *Run) Results() []NodeResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeResult, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.results[id])
	}
	return out
}

// Len returns how many results have been recorded.
func (r *Run) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}

func (r *Run) Status() model.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Finish finalizes the run. Later calls are ignored so a cancellation
// path and a normal path cannot fight over the outcome.
func (r *Run) Finish(status model.RunStatus, outputs map[string]cty.Value, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != model.RunRunning {
		return
	}
	r.status = status
	r.outputs = outputs
	r.err = err
	r.endedAt = time.Now().UTC()
}

// Outputs returns the assembled output values of the run.
func (r *Run) Outputs() map[string]cty.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outputs
}

func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Run) EndedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endedAt
}
