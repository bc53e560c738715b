package nodes

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// runTemplate renders the node's body against upstream outputs and
// emits the result under the "template" key.
func runTemplate(ctx context.Context, req *Request) (*Response, error) {
	text, err := resolve.String(req.Node.Template.Body, req.Scope)
	if err != nil {
		return nil, execErr(model.ExecConstruction, req.Node.ID, err)
	}
	return &Response{Output: cty.ObjectVal(map[string]cty.Value{
		"template": cty.StringVal(text),
	})}, nil
}
