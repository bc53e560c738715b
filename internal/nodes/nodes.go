// Package nodes implements the per-kind node executors behind a dispatch
// registry. Each executor resolves its node's configuration against the
// run scope, performs its effect through the capability set, and returns
// the node's declared output object. Executors never touch run state;
// recording and gating belong to the scheduler.
package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// ErrNoEntriesResolved reports that an output node dropped every one of
// its entries because no source produced a result. The scheduler turns
// this into a skip rather than a failure.
var ErrNoEntriesResolved = errors.New("no output entries could be resolved")

// Request is everything an executor may need: the node, the run scope,
// the caller's run input, and the capability set.
type Request struct {
	Node     *model.Node
	Scope    *resolve.Scope
	RunInput map[string]any
	Caps     *capability.Set
}

// Response is an executor's outcome. Output always matches the node
// kind's declared schema; Branch is set by conditions, Usage by llm
// nodes.
type Response struct {
	Output cty.Value
	Branch string
	Usage  *model.TokenUsage
}

// ExecFunc executes one node kind.
type ExecFunc func(ctx context.Context, req *Request) (*Response, error)

// Registry maps node kinds to executors.
type Registry struct {
	execs map[model.Kind]ExecFunc
}

func NewRegistry() *Registry {
	return &Registry{execs: make(map[model.Kind]ExecFunc)}
}

// Register installs an executor for a kind. Registering a kind twice is a
// programming error and panics at startup.
func (r *Registry) Register(kind model.Kind, fn ExecFunc) {
	if _, exists := r.execs[kind]; exists {
		panic(fmt.Sprintf("executor for node kind '%s' already registered", kind))
	}
	r.execs[kind] = fn
}

// Exec returns the executor for a kind.
func (r *Registry) Exec(kind model.Kind) (ExecFunc, bool) {
	fn, ok := r.execs[kind]
	return fn, ok
}

// Default builds a registry with every built-in node kind installed.
func Default() *Registry {
	r := NewRegistry()
	r.Register(model.KindInput, runInput)
	r.Register(model.KindLLM, runLLM)
	r.Register(model.KindTool, runTool)
	r.Register(model.KindCondition, runCondition)
	r.Register(model.KindHTTP, runHTTP)
	r.Register(model.KindTemplate, runTemplate)
	r.Register(model.KindOutput, runOutput)
	return r
}

// execErr wraps an executor failure with its node and kind.
func execErr(kind model.ExecErrorKind, nodeID string, err error) error {
	return model.NewExecutionError(kind, nodeID, err)
}

// capErr classifies an error from a capability call: context expiry maps
// to timeout or cancellation, anything else to the given kind.
func capErr(nodeID string, err error, fallback model.ExecErrorKind) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return execErr(model.ExecTimeout, nodeID, err)
	case errors.Is(err, context.Canceled):
		return execErr(model.ExecCanceled, nodeID, err)
	default:
		return execErr(fallback, nodeID, err)
	}
}
