// Package capability defines the engine's outward-facing ports: model
// invocation, HTTP, and the tool registry. Executors depend on these
// interfaces only, so tests and embedders swap implementations by
// constructing a Set rather than by patching globals.
package capability

import (
	"context"
	"errors"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/model"
)

// ErrUnknownTool is returned by tool registries when no tool is
// registered under the requested name.
var ErrUnknownTool = errors.New("unknown tool")

// ModelMessage is one chat message sent to a model provider.
type ModelMessage struct {
	Role    string
	Content string
}

// ModelRequest is a fully resolved model invocation: templates in message
// content have already been rendered.
type ModelRequest struct {
	Model    string
	Messages []ModelMessage

	// OutputSchema, when not NilType, asks the provider for structured
	// output of this shape.
	OutputSchema cty.Type
}

// ModelResponse carries the provider's answer. Structured is set instead
// of Text when an output schema was requested.
type ModelResponse struct {
	Text       string
	Structured cty.Value
	Usage      model.TokenUsage
}

// ModelInvoker is the model-invocation port. Implementations wrap
// whatever provider protocol the host application speaks.
type ModelInvoker interface {
	Invoke(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}

// HTTPRequest is a fully resolved outbound request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    string
}

// HTTPResponse is the outcome of a performed request. Non-2xx statuses
// are responses, not errors; Doer errors mean the request never
// completed.
type HTTPResponse struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       string
	Size       int64
	Duration   time.Duration
}

// HTTPDoer is the HTTP port. Do returns an error only when no response
// was obtained at all (connection failure, cancelled context).
type HTTPDoer interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// ToolFunc is one in-process tool. Args arrive as a resolved cty object.
type ToolFunc func(ctx context.Context, args cty.Value) (cty.Value, error)

// ToolRegistry is the tool port. Unknown names are reported with
// ErrUnknownTool so callers can classify the failure.
type ToolRegistry interface {
	Invoke(ctx context.Context, name string, args cty.Value) (cty.Value, error)
}

// Set bundles the capabilities a run executes against.
type Set struct {
	Model ModelInvoker
	HTTP  HTTPDoer
	Tools ToolRegistry
}

// WithDefaults fills any nil capability with a production default: a
// pooled HTTP client, an empty tool registry, and a model invoker that
// fails loudly until the host wires a real provider.
func (s *Set) WithDefaults() *Set {
	out := &Set{Model: s.Model, HTTP: s.HTTP, Tools: s.Tools}
	if out.HTTP == nil {
		out.HTTP = NewHTTPClient(30 * time.Second)
	}
	if out.Tools == nil {
		out.Tools = NewBuiltinTools()
	}
	if out.Model == nil {
		out.Model = unconfiguredModel{}
	}
	return out
}

type unconfiguredModel struct{}

func (unconfiguredModel) Invoke(context.Context, *ModelRequest) (*ModelResponse, error) {
	return nil, errors.New("no model capability configured")
}
