package nodes

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// runCondition evaluates the node's expression or cases and selects a
// branch label. The label gates downstream edges; the node itself emits
// an empty output object.
func runCondition(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Node.Condition
	nodeID := req.Node.ID

	branch := "default"
	if cfg.Expression != nil {
		ok, err := evalBool(cfg.Expression, req)
		if err != nil {
			return nil, err
		}
		branch = "false"
		if ok {
			branch = "true"
		}
	} else {
		for _, c := range cfg.Cases {
			ok, err := evalBool(c.When, req)
			if err != nil {
				return nil, fmt.Errorf("case %q: %w", c.Label, err)
			}
			if ok {
				branch = c.Label
				break
			}
		}
	}

	ctxlog.FromContext(ctx).Info("🔀 Condition selected branch.", "node", nodeID, "branch", branch)
	return &Response{Output: cty.EmptyObjectVal, Branch: branch}, nil
}

func evalBool(e *model.Expr, req *Request) (bool, error) {
	v, err := resolve.Value(e, req.Scope)
	if err != nil {
		return false, execErr(model.ExecConstruction, req.Node.ID, err)
	}
	b, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, execErr(model.ExecConstruction, req.Node.ID,
			fmt.Errorf("%q is not a boolean: %w", e.Source(), err))
	}
	if b.IsNull() {
		return false, execErr(model.ExecConstruction, req.Node.ID,
			fmt.Errorf("%q evaluated to null", e.Source()))
	}
	return b.True(), nil
}
