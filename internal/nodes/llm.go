package nodes

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/resolve"
)

// runLLM renders the node's message templates and invokes the model
// capability. The output is {totalTokens, answer}; answer follows the
// node's output schema when one is declared.
func runLLM(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Node.LLM
	nodeID := req.Node.ID
	logger := ctxlog.FromContext(ctx)

	messages := make([]capability.ModelMessage, 0, len(cfg.Messages))
	for i, m := range cfg.Messages {
		content, err := resolve.String(m.Content, req.Scope)
		if err != nil {
			return nil, execErr(model.ExecConstruction, nodeID,
				fmt.Errorf("message %d: %w", i, err))
		}
		messages = append(messages, capability.ModelMessage{Role: m.Role, Content: content})
	}

	logger.Info("🧠 Invoking model.", "node", nodeID, "model", cfg.Model, "messages", len(messages))
	res, err := req.Caps.Model.Invoke(ctx, &capability.ModelRequest{
		Model:        cfg.Model,
		Messages:     messages,
		OutputSchema: cfg.OutputSchema,
	})
	if err != nil {
		return nil, capErr(nodeID, err, model.ExecProvider)
	}

	answer := cty.StringVal(res.Text)
	if res.Structured != cty.NilVal {
		answer = res.Structured
		if cfg.OutputSchema != cty.NilType {
			answer, err = convert.Convert(answer, cfg.OutputSchema)
			if err != nil {
				return nil, execErr(model.ExecProvider, nodeID,
					fmt.Errorf("structured output does not match the declared schema: %w", err))
			}
		}
	}

	usage := res.Usage
	return &Response{
		Output: cty.ObjectVal(map[string]cty.Value{
			"totalTokens": cty.NumberIntVal(int64(usage.TotalTokens)),
			"answer":      answer,
		}),
		Usage: &usage,
	}, nil
}
