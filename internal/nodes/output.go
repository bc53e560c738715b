package nodes

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// runOutput collects the configured values into the run's result
// object. Entries that reference nodes with no recorded output are
// dropped rather than failed, so a partially-taken branch still yields
// the values that did materialize. When nothing at all resolves the
// executor reports ErrNoEntriesResolved and the node is skipped.
func runOutput(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Node.Output
	nodeID := req.Node.ID

	keys := make([]string, 0, len(cfg.Values))
	for k := range cfg.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make(map[string]cty.Value, len(keys))
	dropped := 0
	for _, k := range keys {
		e := cfg.Values[k]
		if missing := absentRefs(e, req.Scope); len(missing) > 0 {
			ctxlog.FromContext(ctx).Debug("Dropping output entry with unavailable sources.",
				"node", nodeID, "entry", k, "missing", missing)
			dropped++
			continue
		}
		v, err := resolve.Value(e, req.Scope)
		if err != nil {
			return nil, execErr(model.ExecConstruction, nodeID, fmt.Errorf("value %q: %w", k, err))
		}
		entries[k] = v
	}

	if len(entries) == 0 && dropped > 0 {
		return nil, ErrNoEntriesResolved
	}
	out := cty.EmptyObjectVal
	if len(entries) > 0 {
		out = cty.ObjectVal(entries)
	}
	return &Response{Output: out}, nil
}

func absentRefs(e *model.Expr, scope *resolve.Scope) []string {
	var missing []string
	for _, node := range e.RefNodes() {
		if !scope.Has(node) {
			missing = append(missing, node)
		}
	}
	return missing
}
