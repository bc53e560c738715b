package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseExprRefs(t *testing.T) {
	t.Run("bare reference", func(t *testing.T) {
		e, err := ParseExpr("node.fetch.output.response.body", "test")
		require.NoError(t, err)
		require.Len(t, e.Refs(), 1)

		ref := e.Refs()[0]
		assert.Equal(t, "fetch", ref.Node)
		assert.Equal(t, cty.Path{
			cty.GetAttrStep{Name: "response"},
			cty.GetAttrStep{Name: "body"},
		}, ref.Path)
		assert.False(t, e.Literal())
	})

	t.Run("whole output object", func(t *testing.T) {
		e, err := ParseExpr("node.fetch.output", "test")
		require.NoError(t, err)
		require.Len(t, e.Refs(), 1)
		assert.Empty(t, e.Refs()[0].Path)
	})

	t.Run("indexed reference", func(t *testing.T) {
		e, err := ParseExpr(`node.list.output.items[0]`, "test")
		require.NoError(t, err)
		require.Len(t, e.Refs(), 1)

		ref := e.Refs()[0]
		require.Len(t, ref.Path, 2)
		assert.Equal(t, cty.GetAttrStep{Name: "items"}, ref.Path[0])
		idx, ok := ref.Path[1].(cty.IndexStep)
		require.True(t, ok)
		assert.True(t, cty.NumberIntVal(0).RawEquals(idx.Key))
	})

	t.Run("expression with several references", func(t *testing.T) {
		e, err := ParseExpr("node.a.output.n + node.b.output.n", "test")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, e.RefNodes())
	})

	t.Run("repeated node collapses in RefNodes", func(t *testing.T) {
		e, err := ParseExpr("node.a.output.x + node.a.output.y", "test")
		require.NoError(t, err)
		assert.Len(t, e.Refs(), 2)
		assert.Equal(t, []string{"a"}, e.RefNodes())
	})

	t.Run("unknown root is rejected", func(t *testing.T) {
		_, err := ParseExpr("step.a.output.x", "test")
		assert.ErrorContains(t, err, "unknown reference root")
	})

	t.Run("missing output segment is rejected", func(t *testing.T) {
		_, err := ParseExpr("node.a.result", "test")
		assert.ErrorContains(t, err, "only a node's output is addressable")
	})

	t.Run("bare node id is rejected", func(t *testing.T) {
		_, err := ParseExpr("node.a", "test")
		assert.ErrorContains(t, err, "references address a node's output")
	})
}

func TestParseTemplate(t *testing.T) {
	t.Run("plain text is literal", func(t *testing.T) {
		e, err := ParseTemplate("hello world", "test")
		require.NoError(t, err)
		assert.True(t, e.Literal())
		assert.Empty(t, e.Refs())
		assert.Equal(t, FormTemplate, e.Form())
	})

	t.Run("interpolation carries references", func(t *testing.T) {
		e, err := ParseTemplate("Hello ${node.who.output.name}!", "test")
		require.NoError(t, err)
		require.Len(t, e.Refs(), 1)
		assert.Equal(t, "who", e.Refs()[0].Node)
	})

	t.Run("source is preserved", func(t *testing.T) {
		src := "value: ${node.a.output.v}"
		e, err := ParseTemplate(src, "test")
		require.NoError(t, err)
		assert.Equal(t, src, e.Source())
	})
}

func TestRefString(t *testing.T) {
	ref := Ref{Node: "fetch", Path: cty.Path{
		cty.GetAttrStep{Name: "response"},
		cty.GetAttrStep{Name: "headers"},
		cty.IndexStep{Key: cty.StringVal("Content-Type")},
	}}
	assert.Equal(t, `node.fetch.output.response.headers["Content-Type"]`, ref.String())
}

func TestTypeHasPath(t *testing.T) {
	respType := cty.Object(map[string]cty.Type{
		"response": HTTPResponseType,
	})

	cases := []struct {
		name string
		path cty.Path
		want bool
	}{
		{"empty path", nil, true},
		{"top attr", cty.Path{cty.GetAttrStep{Name: "response"}}, true},
		{"nested attr", cty.Path{cty.GetAttrStep{Name: "response"}, cty.GetAttrStep{Name: "status"}}, true},
		{"header by index", cty.Path{cty.GetAttrStep{Name: "response"}, cty.GetAttrStep{Name: "headers"}, cty.IndexStep{Key: cty.StringVal("Accept")}}, true},
		{"missing attr", cty.Path{cty.GetAttrStep{Name: "response"}, cty.GetAttrStep{Name: "json"}}, false},
		{"unknown top attr", cty.Path{cty.GetAttrStep{Name: "result"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TypeHasPath(respType, tc.path))
		})
	}

	t.Run("dynamic admits anything", func(t *testing.T) {
		toolType := (&Node{Kind: KindTool}).OutputType()
		deep := cty.Path{
			cty.GetAttrStep{Name: "tool_result"},
			cty.GetAttrStep{Name: "anything"},
			cty.IndexStep{Key: cty.NumberIntVal(3)},
		}
		assert.True(t, TypeHasPath(toolType, deep))
	})

	t.Run("condition output admits nothing", func(t *testing.T) {
		condType := (&Node{Kind: KindCondition}).OutputType()
		assert.False(t, TypeHasPath(condType, cty.Path{cty.GetAttrStep{Name: "branch"}}))
	})
}

func TestConditionLabels(t *testing.T) {
	t.Run("boolean form", func(t *testing.T) {
		expr, err := ParseExpr("node.a.output.ok", "test")
		require.NoError(t, err)
		c := &ConditionConfig{Expression: expr}
		assert.Equal(t, []string{"true", "false"}, c.Labels())
		assert.True(t, c.HasLabel("false"))
		assert.False(t, c.HasLabel("maybe"))
	})

	t.Run("case form always has default", func(t *testing.T) {
		when, err := ParseExpr("node.a.output.n > 10", "test")
		require.NoError(t, err)
		c := &ConditionConfig{Cases: []*ConditionCase{{Label: "big", When: when}}}
		assert.Equal(t, []string{"big", "default"}, c.Labels())
	})
}
