package hclflow

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowgridgo/internal/model"
)

// flowFile is the top-level shape of one flow file.
type flowFile struct {
	Workflow *workflowBlock `hcl:"workflow,block"`
	Nodes    []*nodeBlock   `hcl:"node,block"`
	Body     hcl.Body       `hcl:",remain"`
}

type workflowBlock struct {
	ID      string `hcl:"id,optional"`
	Name    string `hcl:"name,optional"`
	Owner   string `hcl:"owner,optional"`
	Timeout string `hcl:"timeout,optional"`
}

// nodeBlock is the common husk of a node declaration. The kind-specific
// content stays in Remain until decodeNode claims it.
type nodeBlock struct {
	Kind      string   `hcl:"kind,label"`
	Name      string   `hcl:"name,label"`
	DependsOn []string `hcl:"depends_on,optional"`
	Timeout   string   `hcl:"timeout,optional"`
	Remain    hcl.Body `hcl:",remain"`
}

func (b *nodeBlock) addr() string { return fmt.Sprintf("node %q %q", b.Kind, b.Name) }

// argsBlock carries a free-form attribute body, decoded lazily so the
// attribute expressions keep their source ranges.
type argsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type inputBody struct {
	Fields []*fieldBlock `hcl:"field,block"`
}

type fieldBlock struct {
	Name    string         `hcl:"name,label"`
	Type    hcl.Expression `hcl:"type,optional"`
	Default hcl.Expression `hcl:"default,optional"`
}

type llmBody struct {
	Model        string          `hcl:"model"`
	OutputSchema hcl.Expression  `hcl:"output_schema,optional"`
	Messages     []*messageBlock `hcl:"message,block"`
}

type messageBlock struct {
	Role    string         `hcl:"role,label"`
	Content hcl.Expression `hcl:"content"`
}

type toolBody struct {
	Tool      string     `hcl:"tool"`
	Arguments *argsBlock `hcl:"arguments,block"`
}

type conditionBody struct {
	Expression hcl.Expression `hcl:"expression,optional"`
	Cases      []*caseBlock   `hcl:"case,block"`
}

type caseBlock struct {
	Label string         `hcl:"label,label"`
	When  hcl.Expression `hcl:"when"`
}

type httpBody struct {
	Method  string         `hcl:"method,optional"`
	URL     hcl.Expression `hcl:"url"`
	Headers hcl.Expression `hcl:"headers,optional"`
	Query   hcl.Expression `hcl:"query,optional"`
	Body    hcl.Expression `hcl:"body,optional"`
}

type templateBody struct {
	Content hcl.Expression `hcl:"content"`
}

type outputBody struct {
	Values *argsBlock `hcl:"values,block"`
}

// decodeNode turns one node block into its model form.
func decodeNode(nb *nodeBlock, file *hcl.File) (*model.Node, error) {
	kind := model.Kind(nb.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("%s: unknown node kind", nb.addr())
	}

	n := &model.Node{ID: nb.Name, Kind: kind}
	if nb.Timeout != "" {
		d, err := time.ParseDuration(nb.Timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid timeout %q", nb.addr(), nb.Timeout)
		}
		n.Timeout = d
	}

	var err error
	switch kind {
	case model.KindInput:
		n.Input, err = decodeInput(nb.Remain, file)
	case model.KindLLM:
		n.LLM, err = decodeLLM(nb.Remain, file)
	case model.KindTool:
		n.Tool, err = decodeTool(nb.Remain, file)
	case model.KindCondition:
		n.Condition, err = decodeCondition(nb.Remain, file)
	case model.KindHTTP:
		n.HTTP, err = decodeHTTP(nb.Remain, file)
	case model.KindTemplate:
		n.Template, err = decodeTemplate(nb.Remain, file)
	case model.KindOutput:
		n.Output, err = decodeOutput(nb.Remain, file)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", nb.addr(), err)
	}
	return n, nil
}

func decodeInput(body hcl.Body, file *hcl.File) (*model.InputConfig, error) {
	var b inputBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	cfg := &model.InputConfig{}
	for _, fb := range b.Fields {
		ft := cty.DynamicPseudoType
		if fb.Type != nil {
			t, diags := typeexpr.TypeConstraint(fb.Type)
			if diags.HasErrors() {
				return nil, fmt.Errorf("field %q: invalid type: %s", fb.Name, diags.Error())
			}
			ft = t
		}
		f := &model.InputField{Name: fb.Name, Type: ft}
		if fb.Default != nil {
			val, diags := fb.Default.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("field %q: default must be a constant: %s", fb.Name, diags.Error())
			}
			conv, err := convert.Convert(val, ft)
			if err != nil {
				return nil, fmt.Errorf("field %q: default does not fit type %s: %w", fb.Name, ft.FriendlyName(), err)
			}
			f.Default = conv
		}
		cfg.Fields = append(cfg.Fields, f)
	}
	return cfg, nil
}

func decodeLLM(body hcl.Body, file *hcl.File) (*model.LLMConfig, error) {
	var b llmBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	cfg := &model.LLMConfig{Model: b.Model}
	if b.OutputSchema != nil {
		t, diags := typeexpr.TypeConstraint(b.OutputSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid output_schema: %s", diags.Error())
		}
		cfg.OutputSchema = t
	}
	for _, mb := range b.Messages {
		content, err := wrapExpr(mb.Content, file)
		if err != nil {
			return nil, fmt.Errorf("message %q: %w", mb.Role, err)
		}
		cfg.Messages = append(cfg.Messages, &model.Message{Role: mb.Role, Content: content})
	}
	return cfg, nil
}

func decodeTool(body hcl.Body, file *hcl.File) (*model.ToolConfig, error) {
	var b toolBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	cfg := &model.ToolConfig{Tool: b.Tool}
	if b.Arguments != nil {
		args, err := attrExprs(b.Arguments.Body, file)
		if err != nil {
			return nil, fmt.Errorf("arguments: %w", err)
		}
		cfg.Args = args
	}
	return cfg, nil
}

func decodeCondition(body hcl.Body, file *hcl.File) (*model.ConditionConfig, error) {
	var b conditionBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	cfg := &model.ConditionConfig{}
	var err error
	if cfg.Expression, err = wrapExpr(b.Expression, file); err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}
	for _, cb := range b.Cases {
		when, err := wrapExpr(cb.When, file)
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", cb.Label, err)
		}
		cfg.Cases = append(cfg.Cases, &model.ConditionCase{Label: cb.Label, When: when})
	}
	return cfg, nil
}

func decodeHTTP(body hcl.Body, file *hcl.File) (*model.HTTPConfig, error) {
	var b httpBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	cfg := &model.HTTPConfig{Method: b.Method}
	var err error
	if cfg.URL, err = wrapExpr(b.URL, file); err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}
	if cfg.Body, err = wrapExpr(b.Body, file); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	if cfg.Headers, err = exprMap(b.Headers, file, "headers"); err != nil {
		return nil, err
	}
	if cfg.Query, err = exprMap(b.Query, file, "query"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeTemplate(body hcl.Body, file *hcl.File) (*model.TemplateConfig, error) {
	var b templateBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	content, err := wrapExpr(b.Content, file)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	return &model.TemplateConfig{Body: content}, nil
}

func decodeOutput(body hcl.Body, file *hcl.File) (*model.OutputConfig, error) {
	var b outputBody
	if diags := gohcl.DecodeBody(body, nil, &b); diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	cfg := &model.OutputConfig{Values: map[string]*model.Expr{}}
	if b.Values != nil {
		vals, err := attrExprs(b.Values.Body, file)
		if err != nil {
			return nil, fmt.Errorf("values: %w", err)
		}
		cfg.Values = vals
	}
	return cfg, nil
}

// wrapExpr keeps the exact source slice of an expression so workflows
// loaded from flow files re-serialize the way the author wrote them.
func wrapExpr(expr hcl.Expression, file *hcl.File) (*model.Expr, error) {
	if expr == nil {
		return nil, nil
	}
	src := string(expr.Range().SliceBytes(file.Bytes))
	return model.FromHCL(expr, src)
}

// attrExprs decodes a free-form attribute body into named expressions.
func attrExprs(body hcl.Body, file *hcl.File) (map[string]*model.Expr, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	out := make(map[string]*model.Expr, len(attrs))
	for name, attr := range attrs {
		e, err := wrapExpr(attr.Expr, file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = e
	}
	return out, nil
}

// exprMap decodes a map-constructor attribute like
// headers = { "Accept" = "application/json" }.
func exprMap(expr hcl.Expression, file *hcl.File, what string) (map[string]*model.Expr, error) {
	if expr == nil {
		return nil, nil
	}
	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s must be a map like { name = value }: %s", what, diags.Error())
	}

	out := make(map[string]*model.Expr, len(pairs))
	for _, pair := range pairs {
		key, diags := pair.Key.Value(nil)
		if diags.HasErrors() || key.Type() != cty.String {
			return nil, fmt.Errorf("%s keys must be constant strings", what)
		}
		val, err := wrapExpr(pair.Value, file)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", what, key.AsString(), err)
		}
		out[key.AsString()] = val
	}
	return out, nil
}
