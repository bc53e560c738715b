package nodes

import (
	"context"
	"fmt"

	"dario.cat/mergo"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
)

// runInput validates the caller-supplied run input against the node's
// declared fields and re-emits it as the node's output. Declared defaults
// are merged under the caller's values first; fields the node does not
// declare are ignored.
func runInput(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Node.Input
	nodeID := req.Node.ID

	merged := make(map[string]any, len(req.RunInput))
	for k, v := range req.RunInput {
		merged[k] = v
	}
	defaults := make(map[string]any)
	for _, f := range cfg.Fields {
		if f.Default != cty.NilVal {
			defaults[f.Name] = model.ToGoValue(f.Default)
		}
	}
	if err := mergo.Merge(&merged, defaults); err != nil {
		return nil, execErr(model.ExecInvalidInput, nodeID, err)
	}

	attrs := make(map[string]cty.Value, len(cfg.Fields))
	for _, f := range cfg.Fields {
		raw, ok := merged[f.Name]
		if !ok {
			return nil, execErr(model.ExecInvalidInput, nodeID,
				fmt.Errorf("missing required input field %q", f.Name))
		}
		val, err := model.FromGoValue(raw)
		if err != nil {
			return nil, execErr(model.ExecInvalidInput, nodeID,
				fmt.Errorf("input field %q: %w", f.Name, err))
		}
		val, err = convert.Convert(val, f.Type)
		if err != nil {
			return nil, execErr(model.ExecInvalidInput, nodeID,
				fmt.Errorf("input field %q does not fit its declared type: %w", f.Name, err))
		}
		attrs[f.Name] = val
	}

	ctxlog.FromContext(ctx).Debug("Validated run input.", "node", nodeID, "fields", len(attrs))
	return &Response{Output: cty.ObjectVal(attrs)}, nil
}
