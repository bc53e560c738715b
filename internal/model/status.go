package model

// Kind identifies what a node does when it executes.
type Kind string

const (
	KindInput     Kind = "input"
	KindLLM       Kind = "llm"
	KindTool      Kind = "tool"
	KindCondition Kind = "condition"
	KindHTTP      Kind = "http"
	KindTemplate  Kind = "template"
	KindOutput    Kind = "output"
)

// Kinds lists every node kind the engine dispatches on.
var Kinds = []Kind{
	KindInput, KindLLM, KindTool, KindCondition, KindHTTP, KindTemplate, KindOutput,
}

func (k Kind) Valid() bool {
	switch k {
	case KindInput, KindLLM, KindTool, KindCondition, KindHTTP, KindTemplate, KindOutput:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// NodeStatus is the lifecycle state of one node within a run.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeSucceeded NodeStatus = "succeeded"
	NodeFailed    NodeStatus = "failed"

	// NodeSkipped marks a node bypassed by branch gating or by a data
	// dependency on a node that produced no output.
	NodeSkipped NodeStatus = "skipped"

	// NodeSkippedDownstream marks a node bypassed because something
	// upstream of it failed.
	NodeSkippedDownstream NodeStatus = "skipped-due-to-failure"
)

// Terminal reports whether the status is one a node never leaves.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeSucceeded, NodeFailed, NodeSkipped, NodeSkippedDownstream:
		return true
	}
	return false
}

// Skipped reports whether the node was bypassed for any reason.
func (s NodeStatus) Skipped() bool {
	return s == NodeSkipped || s == NodeSkippedDownstream
}

// RunStatus is the overall state of a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"

	// RunPartial means some output nodes produced results and at least one
	// node failed or was skipped along the way.
	RunPartial RunStatus = "partial"

	RunFailed RunStatus = "failed"
)
