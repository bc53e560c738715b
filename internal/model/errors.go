package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkflowNotFound is returned by stores when no workflow exists
	// under the requested id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound is returned by stores when no archived run exists
	// under the requested id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotPublished is returned when a workflow is invoked by id but has
	// no published snapshot.
	ErrNotPublished = errors.New("workflow has no published version")

	// ErrNoOutput marks a run in which no output node produced a result.
	ErrNoOutput = errors.New("no output node produced a result")
)

// IssueKind classifies one validation finding.
type IssueKind string

const (
	IssueDuplicateNodeID    IssueKind = "duplicate-node-id"
	IssueInvalidNode        IssueKind = "invalid-node"
	IssueCycleDetected      IssueKind = "cycle-detected"
	IssueDanglingReference  IssueKind = "dangling-reference"
	IssueInvalidBranchLabel IssueKind = "invalid-branch-label"

	// Warning kinds. These never fail validation.
	IssueUnreachableNode IssueKind = "unreachable-node"
	IssueNoInputNodes    IssueKind = "no-input-nodes"
	IssueNoOutputNodes   IssueKind = "no-output-nodes"
)

// Issue is one validation finding against a workflow graph.
type Issue struct {
	Kind   IssueKind
	NodeID string
	Path   string
	Detail string
}

func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(string(i.Kind))
	if i.NodeID != "" {
		b.WriteString(" at node " + i.NodeID)
	}
	if i.Path != "" {
		b.WriteString(" (" + i.Path + ")")
	}
	if i.Detail != "" {
		b.WriteString(": " + i.Detail)
	}
	return b.String()
}

// ValidationError aggregates every blocking issue found in a workflow.
// It is raised before any node executes.
type ValidationError struct {
	WorkflowID string
	Issues     []Issue
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("workflow %q is invalid: %d issue(s)", e.WorkflowID, len(e.Issues))
	for _, i := range e.Issues {
		msg += "\n  - " + i.String()
	}
	return msg
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ResolutionErrorKind classifies reference resolution failures.
type ResolutionErrorKind string

const (
	// ResolutionUnresolved means the referenced node has no recorded
	// output in the current scope.
	ResolutionUnresolved ResolutionErrorKind = "unresolved-reference"

	// ResolutionFieldNotFound means the referenced node produced an
	// output, but the requested path does not exist in it.
	ResolutionFieldNotFound ResolutionErrorKind = "field-not-found"
)

// ResolutionError is a failure to resolve one reference against the
// outputs available at evaluation time.
type ResolutionError struct {
	Kind   ResolutionErrorKind
	Ref    Ref
	Detail string
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ResolutionFieldNotFound:
		return fmt.Sprintf("field not found: %s: %s", e.Ref, e.Detail)
	default:
		return fmt.Sprintf("unresolved reference %s: %s", e.Ref, e.Detail)
	}
}

func IsFieldNotFound(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == ResolutionFieldNotFound
}

func IsUnresolvedReference(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == ResolutionUnresolved
}

// ExecErrorKind classifies node execution failures.
type ExecErrorKind string

const (
	// ExecConstruction means the node's request could not be built from
	// its configuration (a resolution or conversion failure).
	ExecConstruction ExecErrorKind = "construction-error"

	// ExecInvalidInput means caller input did not satisfy an input node's
	// declared schema.
	ExecInvalidInput ExecErrorKind = "invalid-input"

	ExecTimeout      ExecErrorKind = "timeout"
	ExecCanceled     ExecErrorKind = "canceled"
	ExecProvider     ExecErrorKind = "provider-error"
	ExecToolNotFound ExecErrorKind = "tool-not-found"
	ExecTool         ExecErrorKind = "tool-error"
)

// ExecutionError is a failure of one node during a run. It is recorded in
// the node's result and cascades skips downstream; it never aborts the
// run by itself.
type ExecutionError struct {
	Kind   ExecErrorKind
	NodeID string
	Err    error
}

func NewExecutionError(kind ExecErrorKind, nodeID string, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, NodeID: nodeID, Err: err}
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %q: %s: %v", e.NodeID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func IsTimeout(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Kind == ExecTimeout
}

// RunError is a run-level failure: the whole run produced nothing usable
// or was cut short. Callers still receive the run summary alongside it.
type RunError struct {
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
