package nodes

import (
	"context"
	"errors"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// runTool resolves the node's arguments into a structured object and
// dispatches the named tool through the registry capability.
func runTool(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Node.Tool
	nodeID := req.Node.ID

	args, err := resolve.ValueMap(cfg.Args, req.Scope)
	if err != nil {
		return nil, execErr(model.ExecConstruction, nodeID, err)
	}
	argObj := cty.EmptyObjectVal
	if len(args) > 0 {
		argObj = cty.ObjectVal(args)
	}

	ctxlog.FromContext(ctx).Info("🔧 Invoking tool.", "node", nodeID, "tool", cfg.Tool)
	result, err := req.Caps.Tools.Invoke(ctx, cfg.Tool, argObj)
	if err != nil {
		if errors.Is(err, capability.ErrUnknownTool) {
			return nil, execErr(model.ExecToolNotFound, nodeID, err)
		}
		return nil, capErr(nodeID, err, model.ExecTool)
	}
	if result == cty.NilVal {
		result = cty.NullVal(cty.DynamicPseudoType)
	}

	return &Response{
		Output: cty.ObjectVal(map[string]cty.Value{"tool_result": result}),
	}, nil
}
