package model

import "github.com/zclconf/go-cty/cty"

// HTTPResponseType is the declared shape of an http node's response
// attribute. Bodies stay raw strings; nothing is auto-parsed.
var HTTPResponseType = cty.Object(map[string]cty.Type{
	"status":     cty.Number,
	"statusText": cty.String,
	"ok":         cty.Bool,
	"headers":    cty.Map(cty.String),
	"body":       cty.String,
	"duration":   cty.Number,
	"size":       cty.Number,
})

// OutputType returns the declared schema of the node's output object.
// References are validated against this before a run and resolved against
// the matching value during one.
func (n *Node) OutputType() cty.Type {
	switch n.Kind {
	case KindInput:
		attrs := map[string]cty.Type{}
		if n.Input != nil {
			for _, f := range n.Input.Fields {
				attrs[f.Name] = f.Type
			}
		}
		return cty.Object(attrs)
	case KindLLM:
		answer := cty.DynamicPseudoType
		if n.LLM != nil && n.LLM.OutputSchema != cty.NilType {
			answer = n.LLM.OutputSchema
		}
		return cty.Object(map[string]cty.Type{
			"totalTokens": cty.Number,
			"answer":      answer,
		})
	case KindTool:
		return cty.Object(map[string]cty.Type{
			"tool_result": cty.DynamicPseudoType,
		})
	case KindCondition:
		// Conditions steer edges; they expose nothing referencable.
		return cty.EmptyObject
	case KindHTTP:
		return cty.Object(map[string]cty.Type{
			"response": HTTPResponseType,
		})
	case KindTemplate:
		return cty.Object(map[string]cty.Type{
			"template": cty.String,
		})
	case KindOutput:
		attrs := map[string]cty.Type{}
		if n.Output != nil {
			for k := range n.Output.Values {
				attrs[k] = cty.DynamicPseudoType
			}
		}
		return cty.Object(attrs)
	}
	return cty.DynamicPseudoType
}

// TypeHasPath reports whether path can exist within t. Dynamic types admit
// any path; everything else is checked structurally, mirroring how HCL
// applies attribute and index steps at evaluation time.
func TypeHasPath(t cty.Type, path cty.Path) bool {
	for _, step := range path {
		if t == cty.DynamicPseudoType {
			return true
		}
		switch s := step.(type) {
		case cty.GetAttrStep:
			switch {
			case t.IsObjectType():
				if !t.HasAttribute(s.Name) {
					return false
				}
				t = t.AttributeType(s.Name)
			case t.IsMapType():
				t = t.ElementType()
			default:
				return false
			}
		case cty.IndexStep:
			switch {
			case t.IsMapType():
				t = t.ElementType()
			case t.IsObjectType():
				if s.Key.Type() != cty.String || !s.Key.IsKnown() {
					return false
				}
				name := s.Key.AsString()
				if !t.HasAttribute(name) {
					return false
				}
				t = t.AttributeType(name)
			case t.IsListType() || t.IsSetType():
				t = t.ElementType()
			case t.IsTupleType():
				if s.Key.Type() != cty.Number || !s.Key.IsKnown() {
					return false
				}
				idx, _ := s.Key.AsBigFloat().Int64()
				types := t.TupleElementTypes()
				if idx < 0 || int(idx) >= len(types) {
					return false
				}
				t = types[idx]
			default:
				return false
			}
		}
	}
	return true
}
