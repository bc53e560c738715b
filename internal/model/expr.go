package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// RefRoot is the root name every node reference starts with. References
// take the form node.<id>.output[.<path>].
const RefRoot = "node"

// ExprForm records how an expression's source text is to be re-parsed:
// as a native HCL expression or as a bare string template.
type ExprForm int

const (
	FormExpression ExprForm = iota
	FormTemplate
)

// Ref is one reference from a node's configuration to another node's
// output. Path addresses into the source node's output object; an empty
// path means the whole object.
type Ref struct {
	Node string
	Path cty.Path
}

func (r Ref) String() string {
	return RefRoot + "." + r.Node + ".output" + PathString(r.Path)
}

// PathString renders a cty path the way it is written in an expression,
// e.g. ".response.headers[\"Content-Type\"]".
func PathString(path cty.Path) string {
	var b strings.Builder
	for _, step := range path {
		switch s := step.(type) {
		case cty.GetAttrStep:
			b.WriteString("." + s.Name)
		case cty.IndexStep:
			switch s.Key.Type() {
			case cty.String:
				fmt.Fprintf(&b, "[%q]", s.Key.AsString())
			case cty.Number:
				bf := s.Key.AsBigFloat()
				b.WriteString("[" + bf.Text('f', -1) + "]")
			default:
				b.WriteString("[?]")
			}
		}
	}
	return b.String()
}

// Expr is a dynamic configuration value: parsed once at load time, carrying
// its original source text for serialization and the node references it
// makes for validation, implicit edges, and gating.
type Expr struct {
	src  string
	form ExprForm
	expr hcl.Expression
	refs []Ref
}

// ParseExpr parses src as a native HCL expression.
func ParseExpr(src, filename string) (*Expr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse expression %q: %w", src, diags)
	}
	return fromParsed(expr, src, FormExpression)
}

// ParseTemplate parses src as a bare string template: plain text with
// ${...} interpolations, the natural carrier for url, header, body,
// message and template fields in JSON documents.
func ParseTemplate(src, filename string) (*Expr, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse template %q: %w", src, diags)
	}
	return fromParsed(expr, src, FormTemplate)
}

// FromHCL wraps an expression already parsed as part of a flow file. src
// is the exact source slice of the expression, which keeps such values
// serializable as native expressions.
func FromHCL(expr hcl.Expression, src string) (*Expr, error) {
	return fromParsed(expr, src, FormExpression)
}

func fromParsed(expr hcl.Expression, src string, form ExprForm) (*Expr, error) {
	refs, err := extractRefs(expr)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, form: form, expr: expr, refs: refs}, nil
}

// LiteralExpr wraps a static string so loaders can treat constant and
// dynamic values uniformly.
func LiteralExpr(text string) *Expr {
	return &Expr{
		src:  text,
		form: FormTemplate,
		expr: &hclsyntax.LiteralValueExpr{Val: cty.StringVal(text)},
	}
}

func (e *Expr) Source() string      { return e.src }
func (e *Expr) Form() ExprForm      { return e.form }
func (e *Expr) HCL() hcl.Expression { return e.expr }

// Refs returns the node references the expression makes, in source order.
func (e *Expr) Refs() []Ref { return e.refs }

// RefNodes returns the distinct node ids the expression references.
func (e *Expr) RefNodes() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range e.refs {
		if !seen[r.Node] {
			seen[r.Node] = true
			out = append(out, r.Node)
		}
	}
	return out
}

// Literal reports whether the expression references nothing and can be
// evaluated without a scope.
func (e *Expr) Literal() bool { return len(e.expr.Variables()) == 0 }

// extractRefs walks the expression's traversals and checks each one is a
// well-formed node.<id>.output reference. Malformed references are load
// errors; references to unknown nodes or fields are left to the validator.
func extractRefs(expr hcl.Expression) ([]Ref, error) {
	var refs []Ref
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if root != RefRoot {
			return nil, fmt.Errorf("unknown reference root %q: references take the form %s.<id>.output.<path>", root, RefRoot)
		}
		if len(traversal) < 2 {
			return nil, fmt.Errorf("incomplete reference: missing node id after %q", RefRoot)
		}
		idStep, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return nil, fmt.Errorf("invalid reference: node id must be a plain name")
		}
		if len(traversal) < 3 {
			return nil, fmt.Errorf("incomplete reference %s.%s: references address a node's output", RefRoot, idStep.Name)
		}
		outStep, ok := traversal[2].(hcl.TraverseAttr)
		if !ok || outStep.Name != "output" {
			return nil, fmt.Errorf("invalid reference %s.%s: only a node's output is addressable", RefRoot, idStep.Name)
		}
		path := make(cty.Path, 0, len(traversal)-3)
		for _, step := range traversal[3:] {
			switch s := step.(type) {
			case hcl.TraverseAttr:
				path = append(path, cty.GetAttrStep{Name: s.Name})
			case hcl.TraverseIndex:
				path = append(path, cty.IndexStep{Key: s.Key})
			default:
				return nil, fmt.Errorf("invalid reference %s.%s: unsupported traversal step", RefRoot, idStep.Name)
			}
		}
		refs = append(refs, Ref{Node: idStep.Name, Path: path})
	}
	return refs, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
