package model

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/flowgridgo/internal/xjson"
)

// Workflows persist and travel as JSON documents. Dynamic fields hold
// source text parsed once at decode time: string-shaped fields (url,
// headers, query, body, template, message content) are string templates,
// everything else (when, expression, tool args, output values) is a native
// expression. A {"$expr": "..."} or {"$template": "..."} wrapper overrides
// the field's natural form.

type workflowDoc struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	Version   int       `json:"version"`
	Published bool      `json:"published,omitempty"`
	Timeout   string    `json:"timeout,omitempty"`
	Nodes     []nodeDoc `json:"nodes"`
	Edges     []edgeDoc `json:"edges,omitempty"`
}

type nodeDoc struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Timeout   string        `json:"timeout,omitempty"`
	Input     *inputDoc     `json:"input,omitempty"`
	LLM       *llmDoc       `json:"llm,omitempty"`
	Tool      *toolDoc      `json:"tool,omitempty"`
	Condition *conditionDoc `json:"condition,omitempty"`
	HTTP      *httpDoc      `json:"http,omitempty"`
	Template  *templateDoc  `json:"template,omitempty"`
	Output    *outputDoc    `json:"output,omitempty"`
}

type edgeDoc struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Branch string `json:"branch,omitempty"`
}

type inputDoc struct {
	Fields []fieldDoc `json:"fields"`
}

type fieldDoc struct {
	Name    string           `json:"name"`
	Type    string           `json:"type"`
	Default xjson.RawMessage `json:"default,omitempty"`
}

type llmDoc struct {
	Model        string       `json:"model"`
	Messages     []messageDoc `json:"messages"`
	OutputSchema string       `json:"output_schema,omitempty"`
}

type messageDoc struct {
	Role    string           `json:"role"`
	Content xjson.RawMessage `json:"content"`
}

type toolDoc struct {
	Tool string                      `json:"tool"`
	Args map[string]xjson.RawMessage `json:"args,omitempty"`
}

type conditionDoc struct {
	Expression xjson.RawMessage `json:"expression,omitempty"`
	Cases      []caseDoc        `json:"cases,omitempty"`
}

type caseDoc struct {
	Label string           `json:"label"`
	When  xjson.RawMessage `json:"when"`
}

type httpDoc struct {
	Method  string                      `json:"method,omitempty"`
	URL     xjson.RawMessage            `json:"url"`
	Headers map[string]xjson.RawMessage `json:"headers,omitempty"`
	Query   map[string]xjson.RawMessage `json:"query,omitempty"`
	Body    xjson.RawMessage            `json:"body,omitempty"`
}

type templateDoc struct {
	Body xjson.RawMessage `json:"body"`
}

type outputDoc struct {
	Values map[string]xjson.RawMessage `json:"values"`
}

// DecodeWorkflow parses a workflow JSON document, including every dynamic
// expression it carries. Structural problems fail here; graph-level rules
// are the validator's job.
func DecodeWorkflow(data []byte) (*Workflow, error) {
	var doc workflowDoc
	if err := xjson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}

	wf := &Workflow{
		ID:        doc.ID,
		Name:      doc.Name,
		Owner:     doc.Owner,
		Version:   doc.Version,
		Published: doc.Published,
	}
	if doc.Timeout != "" {
		d, err := time.ParseDuration(doc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("workflow timeout: %w", err)
		}
		wf.Timeout = d
	}

	for _, nd := range doc.Nodes {
		node, err := decodeNode(nd)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.ID, err)
		}
		wf.Nodes = append(wf.Nodes, node)
	}
	for _, ed := range doc.Edges {
		wf.Edges = append(wf.Edges, Edge{From: ed.From, To: ed.To, Branch: ed.Branch})
	}
	return wf, nil
}

// EncodeWorkflow serializes a workflow back into its JSON document form.
func EncodeWorkflow(wf *Workflow) ([]byte, error) {
	doc := workflowDoc{
		ID:        wf.ID,
		Name:      wf.Name,
		Owner:     wf.Owner,
		Version:   wf.Version,
		Published: wf.Published,
	}
	if wf.Timeout > 0 {
		doc.Timeout = wf.Timeout.String()
	}
	for _, n := range wf.Nodes {
		nd, err := encodeNode(n)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	for _, e := range wf.Edges {
		doc.Edges = append(doc.Edges, edgeDoc{From: e.From, To: e.To, Branch: e.Branch})
	}
	return xjson.Marshal(doc)
}

func decodeNode(nd nodeDoc) (*Node, error) {
	kind := Kind(nd.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown node kind %q", nd.Kind)
	}
	node := &Node{ID: nd.ID, Kind: kind}
	if nd.Timeout != "" {
		d, err := time.ParseDuration(nd.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		node.Timeout = d
	}

	where := func(field string) string { return "nodes." + nd.ID + "." + field }

	if nd.Input != nil {
		cfg := &InputConfig{}
		for _, fd := range nd.Input.Fields {
			f, err := decodeField(fd, where("input."+fd.Name))
			if err != nil {
				return nil, err
			}
			cfg.Fields = append(cfg.Fields, f)
		}
		node.Input = cfg
	}
	if nd.LLM != nil {
		cfg := &LLMConfig{Model: nd.LLM.Model, OutputSchema: cty.NilType}
		if nd.LLM.OutputSchema != "" {
			ty, err := parseTypeString(nd.LLM.OutputSchema, where("llm.output_schema"))
			if err != nil {
				return nil, err
			}
			cfg.OutputSchema = ty
		}
		for i, md := range nd.LLM.Messages {
			content, err := decodeDynamic(md.Content, FormTemplate, where(fmt.Sprintf("llm.messages[%d]", i)))
			if err != nil {
				return nil, err
			}
			cfg.Messages = append(cfg.Messages, &Message{Role: md.Role, Content: content})
		}
		node.LLM = cfg
	}
	if nd.Tool != nil {
		cfg := &ToolConfig{Tool: nd.Tool.Tool, Args: map[string]*Expr{}}
		for k, raw := range nd.Tool.Args {
			arg, err := decodeDynamic(raw, FormExpression, where("tool.args."+k))
			if err != nil {
				return nil, err
			}
			cfg.Args[k] = arg
		}
		node.Tool = cfg
	}
	if nd.Condition != nil {
		cfg := &ConditionConfig{}
		if len(nd.Condition.Expression) > 0 {
			expr, err := decodeDynamic(nd.Condition.Expression, FormExpression, where("condition.expression"))
			if err != nil {
				return nil, err
			}
			cfg.Expression = expr
		}
		for _, cd := range nd.Condition.Cases {
			when, err := decodeDynamic(cd.When, FormExpression, where("condition.cases."+cd.Label))
			if err != nil {
				return nil, err
			}
			cfg.Cases = append(cfg.Cases, &ConditionCase{Label: cd.Label, When: when})
		}
		node.Condition = cfg
	}
	if nd.HTTP != nil {
		cfg := &HTTPConfig{Method: nd.HTTP.Method}
		url, err := decodeDynamic(nd.HTTP.URL, FormTemplate, where("http.url"))
		if err != nil {
			return nil, err
		}
		cfg.URL = url
		if len(nd.HTTP.Headers) > 0 {
			cfg.Headers = map[string]*Expr{}
			for k, raw := range nd.HTTP.Headers {
				v, err := decodeDynamic(raw, FormTemplate, where("http.headers."+k))
				if err != nil {
					return nil, err
				}
				cfg.Headers[k] = v
			}
		}
		if len(nd.HTTP.Query) > 0 {
			cfg.Query = map[string]*Expr{}
			for k, raw := range nd.HTTP.Query {
				v, err := decodeDynamic(raw, FormTemplate, where("http.query."+k))
				if err != nil {
					return nil, err
				}
				cfg.Query[k] = v
			}
		}
		if len(nd.HTTP.Body) > 0 {
			body, err := decodeDynamic(nd.HTTP.Body, FormTemplate, where("http.body"))
			if err != nil {
				return nil, err
			}
			cfg.Body = body
		}
		node.HTTP = cfg
	}
	if nd.Template != nil {
		body, err := decodeDynamic(nd.Template.Body, FormTemplate, where("template.body"))
		if err != nil {
			return nil, err
		}
		node.Template = &TemplateConfig{Body: body}
	}
	if nd.Output != nil {
		cfg := &OutputConfig{Values: map[string]*Expr{}}
		for k, raw := range nd.Output.Values {
			v, err := decodeDynamic(raw, FormExpression, where("output.values."+k))
			if err != nil {
				return nil, err
			}
			cfg.Values[k] = v
		}
		node.Output = cfg
	}
	return node, nil
}

func encodeNode(n *Node) (nodeDoc, error) {
	nd := nodeDoc{ID: n.ID, Kind: string(n.Kind)}
	if n.Timeout > 0 {
		nd.Timeout = n.Timeout.String()
	}

	var err error
	enc := func(e *Expr, natural ExprForm) xjson.RawMessage {
		if err != nil || e == nil {
			return nil
		}
		var raw xjson.RawMessage
		raw, err = encodeDynamic(e, natural)
		return raw
	}

	if n.Input != nil {
		doc := &inputDoc{}
		for _, f := range n.Input.Fields {
			fd := fieldDoc{Name: f.Name, Type: typeString(f.Type)}
			if f.Default != cty.NilVal {
				raw, mErr := xjson.Marshal(ToGoValue(f.Default))
				if mErr != nil {
					return nd, mErr
				}
				fd.Default = raw
			}
			doc.Fields = append(doc.Fields, fd)
		}
		nd.Input = doc
	}
	if n.LLM != nil {
		doc := &llmDoc{Model: n.LLM.Model}
		if n.LLM.OutputSchema != cty.NilType {
			doc.OutputSchema = typeString(n.LLM.OutputSchema)
		}
		for _, m := range n.LLM.Messages {
			doc.Messages = append(doc.Messages, messageDoc{Role: m.Role, Content: enc(m.Content, FormTemplate)})
		}
		nd.LLM = doc
	}
	if n.Tool != nil {
		doc := &toolDoc{Tool: n.Tool.Tool, Args: map[string]xjson.RawMessage{}}
		for k, e := range n.Tool.Args {
			doc.Args[k] = enc(e, FormExpression)
		}
		nd.Tool = doc
	}
	if n.Condition != nil {
		doc := &conditionDoc{}
		if n.Condition.Expression != nil {
			doc.Expression = enc(n.Condition.Expression, FormExpression)
		}
		for _, c := range n.Condition.Cases {
			doc.Cases = append(doc.Cases, caseDoc{Label: c.Label, When: enc(c.When, FormExpression)})
		}
		nd.Condition = doc
	}
	if n.HTTP != nil {
		doc := &httpDoc{Method: n.HTTP.Method, URL: enc(n.HTTP.URL, FormTemplate)}
		if len(n.HTTP.Headers) > 0 {
			doc.Headers = map[string]xjson.RawMessage{}
			for k, e := range n.HTTP.Headers {
				doc.Headers[k] = enc(e, FormTemplate)
			}
		}
		if len(n.HTTP.Query) > 0 {
			doc.Query = map[string]xjson.RawMessage{}
			for k, e := range n.HTTP.Query {
				doc.Query[k] = enc(e, FormTemplate)
			}
		}
		if n.HTTP.Body != nil {
			doc.Body = enc(n.HTTP.Body, FormTemplate)
		}
		nd.HTTP = doc
	}
	if n.Template != nil {
		nd.Template = &templateDoc{Body: enc(n.Template.Body, FormTemplate)}
	}
	if n.Output != nil {
		doc := &outputDoc{Values: map[string]xjson.RawMessage{}}
		for k, e := range n.Output.Values {
			doc.Values[k] = enc(e, FormExpression)
		}
		nd.Output = doc
	}
	return nd, err
}

func decodeField(fd fieldDoc, where string) (*InputField, error) {
	ty, err := parseTypeString(fd.Type, where)
	if err != nil {
		return nil, err
	}
	f := &InputField{Name: fd.Name, Type: ty, Default: cty.NilVal}
	if len(fd.Default) > 0 {
		var raw any
		if err := xjson.Unmarshal(fd.Default, &raw); err != nil {
			return nil, fmt.Errorf("%s: default: %w", where, err)
		}
		val, err := FromGoValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: default: %w", where, err)
		}
		val, err = convert.Convert(val, ty)
		if err != nil {
			return nil, fmt.Errorf("%s: default does not fit type %s: %w", where, fd.Type, err)
		}
		f.Default = val
	}
	return f, nil
}

func decodeDynamic(raw xjson.RawMessage, natural ExprForm, where string) (*Expr, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var wrapper struct {
			Expr     *string `json:"$expr"`
			Template *string `json:"$template"`
		}
		if err := xjson.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%s: %w", where, err)
		}
		switch {
		case wrapper.Expr != nil:
			e, err := ParseExpr(*wrapper.Expr, where)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", where, err)
			}
			return e, nil
		case wrapper.Template != nil:
			e, err := ParseTemplate(*wrapper.Template, where)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", where, err)
			}
			return e, nil
		default:
			return nil, fmt.Errorf("%s: expected a string or a $expr/$template wrapper", where)
		}
	}
	var src string
	if err := xjson.Unmarshal(trimmed, &src); err != nil {
		return nil, fmt.Errorf("%s: %w", where, err)
	}
	var e *Expr
	var err error
	if natural == FormTemplate {
		e, err = ParseTemplate(src, where)
	} else {
		e, err = ParseExpr(src, where)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", where, err)
	}
	return e, nil
}

func encodeDynamic(e *Expr, natural ExprForm) (xjson.RawMessage, error) {
	if e.Form() == natural {
		return xjson.Marshal(e.Source())
	}
	key := "$expr"
	if e.Form() == FormTemplate {
		key = "$template"
	}
	return xjson.Marshal(map[string]string{key: e.Source()})
}

// parseTypeString parses a type expression like "string", "list(number)"
// or "object({name=string})".
func parseTypeString(s, where string) (cty.Type, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(s), where, hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilType, fmt.Errorf("%s: parse type %q: %w", where, s, diags)
	}
	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.NilType, fmt.Errorf("%s: invalid type %q: %w", where, s, diags)
	}
	return ty, nil
}

// typeString renders a cty type in the same syntax parseTypeString reads.
func typeString(t cty.Type) string {
	switch {
	case t == cty.DynamicPseudoType:
		return "any"
	case t == cty.String:
		return "string"
	case t == cty.Number:
		return "number"
	case t == cty.Bool:
		return "bool"
	case t.IsListType():
		return "list(" + typeString(t.ElementType()) + ")"
	case t.IsSetType():
		return "set(" + typeString(t.ElementType()) + ")"
	case t.IsMapType():
		return "map(" + typeString(t.ElementType()) + ")"
	case t.IsTupleType():
		parts := make([]string, 0, len(t.TupleElementTypes()))
		for _, et := range t.TupleElementTypes() {
			parts = append(parts, typeString(et))
		}
		return "tuple([" + strings.Join(parts, ", ") + "])"
	case t.IsObjectType():
		atys := t.AttributeTypes()
		names := make([]string, 0, len(atys))
		for name := range atys {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+typeString(atys[name]))
		}
		return "object({" + strings.Join(parts, ", ") + "})"
	default:
		return "any"
	}
}
