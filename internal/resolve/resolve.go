// Package resolve evaluates node configuration expressions against the
// outputs recorded so far in a run. It is the only place expressions are
// evaluated; everything upstream works with parsed, unevaluated values.
package resolve

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/flowgridgo/internal/model"
)

// Scope holds the outputs of completed nodes for one run. Outputs are
// recorded whole, once, after a node succeeds, so concurrent readers only
// ever observe complete values.
type Scope struct {
	mu      sync.RWMutex
	outputs map[string]cty.Value
}

func NewScope() *Scope {
	return &Scope{outputs: make(map[string]cty.Value)}
}

// Record stores a node's output object. Recording the same node twice is
// a programming error upstream and the first value wins.
func (s *Scope) Record(nodeID string, output cty.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.outputs[nodeID]; !exists {
		s.outputs[nodeID] = output
	}
}

// Has reports whether the node has a recorded output.
func (s *Scope) Has(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.outputs[nodeID]
	return ok
}

// Output returns the node's recorded output object.
func (s *Scope) Output(nodeID string) (cty.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[nodeID]
	return v, ok
}

// EvalContext builds the HCL evaluation context: every recorded node
// appears as node.<id>.output.
func (s *Scope) EvalContext() *hcl.EvalContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make(map[string]cty.Value, len(s.outputs))
	for id, out := range s.outputs {
		nodes[id] = cty.ObjectVal(map[string]cty.Value{"output": out})
	}
	vars := map[string]cty.Value{}
	if len(nodes) > 0 {
		vars[model.RefRoot] = cty.ObjectVal(nodes)
	} else {
		vars[model.RefRoot] = cty.EmptyObjectVal
	}
	return &hcl.EvalContext{Variables: vars}
}

// Value resolves an expression to a cty value. References are checked
// first so failures carry the exact reference that broke: a missing node
// is an unresolved reference, a missing path inside a recorded output is
// a field-not-found.
func Value(e *model.Expr, scope *Scope) (cty.Value, error) {
	if err := checkRefs(e, scope); err != nil {
		return cty.NilVal, err
	}
	val, diags := e.HCL().Value(scope.EvalContext())
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluate %q: %w", e.Source(), diags)
	}
	return val, nil
}

// String resolves an expression and renders it as a string. Template
// parts are evaluated individually so non-string interpolations pass
// through Stringify instead of HCL's string conversion, which would
// reject objects and lists.
func String(e *model.Expr, scope *Scope) (string, error) {
	if err := checkRefs(e, scope); err != nil {
		return "", err
	}
	evalCtx := scope.EvalContext()

	switch tmpl := e.HCL().(type) {
	case *hclsyntax.TemplateExpr:
		var b strings.Builder
		for _, part := range tmpl.Parts {
			pv, diags := part.Value(evalCtx)
			if diags.HasErrors() {
				return "", fmt.Errorf("evaluate %q: %w", e.Source(), diags)
			}
			s, err := Stringify(pv)
			if err != nil {
				return "", fmt.Errorf("evaluate %q: %w", e.Source(), err)
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case *hclsyntax.TemplateWrapExpr:
		pv, diags := tmpl.Wrapped.Value(evalCtx)
		if diags.HasErrors() {
			return "", fmt.Errorf("evaluate %q: %w", e.Source(), diags)
		}
		return Stringify(pv)
	}

	val, diags := e.HCL().Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluate %q: %w", e.Source(), diags)
	}
	return Stringify(val)
}

// StringMap resolves a map of expressions to strings, for headers and
// query parameters.
func StringMap(m map[string]*model.Expr, scope *Scope) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, e := range m {
		v, err := String(e, scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ValueMap resolves a map of expressions to values, for tool arguments
// and output entries.
func ValueMap(m map[string]*model.Expr, scope *Scope) (map[string]cty.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]cty.Value, len(m))
	for k, e := range m {
		v, err := Value(e, scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Stringify renders a value deterministically: strings pass through,
// numbers and bools use their canonical form, and structured values
// become compact JSON with sorted keys.
func Stringify(v cty.Value) (string, error) {
	if v == cty.NilVal || v.IsNull() {
		return "", fmt.Errorf("cannot render a null value")
	}
	if !v.IsKnown() {
		return "", fmt.Errorf("cannot render an unknown value")
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case t == cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	default:
		data, err := ctyjson.Marshal(v, t)
		if err != nil {
			return "", fmt.Errorf("render value as JSON: %w", err)
		}
		return string(data), nil
	}
}

// checkRefs verifies every reference the expression makes against the
// scope before evaluation.
func checkRefs(e *model.Expr, scope *Scope) error {
	for _, ref := range e.Refs() {
		out, ok := scope.Output(ref.Node)
		if !ok {
			return &model.ResolutionError{
				Kind:   model.ResolutionUnresolved,
				Ref:    ref,
				Detail: fmt.Sprintf("node %q has not produced an output", ref.Node),
			}
		}
		if _, err := ApplyPath(out, ref.Path); err != nil {
			return &model.ResolutionError{
				Kind:   model.ResolutionFieldNotFound,
				Ref:    ref,
				Detail: err.Error(),
			}
		}
	}
	return nil
}

// ApplyPath walks a path into a value using the same attribute and index
// semantics HCL applies during evaluation.
func ApplyPath(v cty.Value, path cty.Path) (cty.Value, error) {
	for _, step := range path {
		var diags hcl.Diagnostics
		switch s := step.(type) {
		case cty.GetAttrStep:
			v, diags = hcl.GetAttr(v, s.Name, nil)
		case cty.IndexStep:
			v, diags = hcl.Index(v, s.Key, nil)
		default:
			return cty.NilVal, fmt.Errorf("unsupported path step")
		}
		if diags.HasErrors() {
			return cty.NilVal, diags
		}
	}
	return v, nil
}
