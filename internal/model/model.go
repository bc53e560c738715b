package model

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Workflow is a named, versioned DAG of nodes. Published workflows are
// frozen snapshots: the store hands out copies and the engine only runs
// published versions when invoked by id.
type Workflow struct {
	ID        string
	Name      string
	Owner     string
	Version   int
	Published bool

	// Timeout bounds a whole run. Zero means no deadline.
	Timeout time.Duration

	Nodes []*Node
	Edges []Edge
}

// NodeByID returns the node with the given id, if present.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Edge is a directed dependency between two nodes. A non-empty Branch
// makes the edge conditional: it only activates when its source condition
// node selects that branch label.
type Edge struct {
	From   string
	To     string
	Branch string
}

// Node is one unit of work in a workflow. Exactly one of the per-kind
// config fields is set, matching Kind (a tagged variant, checked by the
// validator).
type Node struct {
	ID   string
	Kind Kind

	// Timeout bounds this node's execution. Zero means inherit the run
	// deadline only.
	Timeout time.Duration

	Input     *InputConfig
	LLM       *LLMConfig
	Tool      *ToolConfig
	Condition *ConditionConfig
	HTTP      *HTTPConfig
	Template  *TemplateConfig
	Output    *OutputConfig
}

// Expressions returns every dynamic expression the node's configuration
// carries, in a stable order. The validator and the implicit-edge pass
// both walk these.
func (n *Node) Expressions() []*Expr {
	var out []*Expr
	add := func(e *Expr) {
		if e != nil {
			out = append(out, e)
		}
	}
	switch n.Kind {
	case KindTemplate:
		if n.Template != nil {
			add(n.Template.Body)
		}
	case KindHTTP:
		if n.HTTP != nil {
			add(n.HTTP.URL)
			add(n.HTTP.Body)
			for _, k := range sortedKeys(n.HTTP.Headers) {
				add(n.HTTP.Headers[k])
			}
			for _, k := range sortedKeys(n.HTTP.Query) {
				add(n.HTTP.Query[k])
			}
		}
	case KindLLM:
		if n.LLM != nil {
			for _, m := range n.LLM.Messages {
				add(m.Content)
			}
		}
	case KindTool:
		if n.Tool != nil {
			for _, k := range sortedKeys(n.Tool.Args) {
				add(n.Tool.Args[k])
			}
		}
	case KindCondition:
		if n.Condition != nil {
			add(n.Condition.Expression)
			for _, c := range n.Condition.Cases {
				add(c.When)
			}
		}
	case KindOutput:
		if n.Output != nil {
			for _, k := range sortedKeys(n.Output.Values) {
				add(n.Output.Values[k])
			}
		}
	}
	return out
}

// Refs returns every node reference the node's expressions carry.
func (n *Node) Refs() []Ref {
	var out []Ref
	for _, e := range n.Expressions() {
		out = append(out, e.Refs()...)
	}
	return out
}

// InputField declares one entry of an input node's schema.
type InputField struct {
	Name string
	Type cty.Type

	// Default is merged under the caller-supplied input when the field is
	// absent. NilVal means the field is required.
	Default cty.Value
}

func (f *InputField) Required() bool { return f.Default == cty.NilVal }

// InputConfig declares the run input an input node admits and re-emits.
type InputConfig struct {
	Fields []*InputField
}

func (c *InputConfig) Field(name string) (*InputField, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// LLMConfig invokes the configured model capability with a resolved
// message list. A non-nil OutputSchema asks the provider for structured
// output of that shape.
type LLMConfig struct {
	Model        string
	Messages     []*Message
	OutputSchema cty.Type
}

// Message is one chat message; Content is a string template.
type Message struct {
	Role    string
	Content *Expr
}

// ToolConfig invokes a named tool from the tool registry capability with
// structured, resolved arguments.
type ToolConfig struct {
	Tool string
	Args map[string]*Expr
}

// ConditionCase is one arm of a multiway condition.
type ConditionCase struct {
	Label string
	When  *Expr
}

// ConditionConfig selects a branch label. Either Expression is set (the
// boolean form, labels "true"/"false") or Cases are (first matching case
// wins, "default" when none do).
type ConditionConfig struct {
	Expression *Expr
	Cases      []*ConditionCase
}

// Labels returns every branch label the condition can select, in order.
func (c *ConditionConfig) Labels() []string {
	if c.Expression != nil {
		return []string{"true", "false"}
	}
	labels := make([]string, 0, len(c.Cases)+1)
	for _, cs := range c.Cases {
		labels = append(labels, cs.Label)
	}
	return append(labels, "default")
}

func (c *ConditionConfig) HasLabel(label string) bool {
	for _, l := range c.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

// HTTPConfig issues one HTTP request through the HTTP capability. URL,
// header and query values, and Body are string templates; Method is
// static.
type HTTPConfig struct {
	Method  string
	URL     *Expr
	Headers map[string]*Expr
	Query   map[string]*Expr
	Body    *Expr
}

// TemplateConfig renders a string template.
type TemplateConfig struct {
	Body *Expr
}

// OutputConfig maps result keys to resolved values. Output nodes are the
// join points of a run: entries whose source produced nothing are dropped
// rather than failing the node.
type OutputConfig struct {
	Values map[string]*Expr
}

// TokenUsage counts provider tokens consumed by an llm node.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
