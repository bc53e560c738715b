package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// BuiltinTools is an in-process ToolRegistry. Registration happens at
// wiring time, before any run starts, so lookups need no locking.
type BuiltinTools struct {
	tools map[string]ToolFunc
}

func NewBuiltinTools() *BuiltinTools {
	return &BuiltinTools{tools: make(map[string]ToolFunc)}
}

// Register adds a named tool. Registering the same name twice is a
// programming error and panics at startup.
func (t *BuiltinTools) Register(name string, fn ToolFunc) {
	if _, exists := t.tools[name]; exists {
		panic(fmt.Sprintf("tool with name '%s' already registered", name))
	}
	slog.Debug("Registering tool.", "name", name)
	t.tools[name] = fn
}

// Invoke dispatches to the named tool.
func (t *BuiltinTools) Invoke(ctx context.Context, name string, args cty.Value) (cty.Value, error) {
	fn, ok := t.tools[name]
	if !ok {
		return cty.NilVal, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return fn(ctx, args)
}

// Names lists the registered tool names, sorted.
func (t *BuiltinTools) Names() []string {
	names := make([]string, 0, len(t.tools))
	for name := range t.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
