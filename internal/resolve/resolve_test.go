package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/model"
)

func scopeWith(t *testing.T, outputs map[string]cty.Value) *Scope {
	t.Helper()
	s := NewScope()
	for id, out := range outputs {
		s.Record(id, out)
	}
	return s
}

func TestValue(t *testing.T) {
	scope := scopeWith(t, map[string]cty.Value{
		"fetch": cty.ObjectVal(map[string]cty.Value{
			"response": cty.ObjectVal(map[string]cty.Value{
				"status": cty.NumberIntVal(200),
				"ok":     cty.True,
				"body":   cty.StringVal(`{"name":"ada"}`),
			}),
		}),
	})

	t.Run("reference resolves", func(t *testing.T) {
		e, err := model.ParseExpr("node.fetch.output.response.status", "test")
		require.NoError(t, err)
		v, err := Value(e, scope)
		require.NoError(t, err)
		assert.True(t, cty.NumberIntVal(200).RawEquals(v))
	})

	t.Run("operators work on resolved values", func(t *testing.T) {
		e, err := model.ParseExpr("node.fetch.output.response.status >= 200 && node.fetch.output.response.ok", "test")
		require.NoError(t, err)
		v, err := Value(e, scope)
		require.NoError(t, err)
		assert.True(t, v.True())
	})

	t.Run("literal needs no scope", func(t *testing.T) {
		e, err := model.ParseExpr(`"plain"`, "test")
		require.NoError(t, err)

		v1, err := Value(e, NewScope())
		require.NoError(t, err)
		v2, err := Value(e, scope)
		require.NoError(t, err)
		assert.True(t, v1.RawEquals(v2))
	})

	t.Run("unresolved reference names the node", func(t *testing.T) {
		e, err := model.ParseExpr("node.missing.output.x", "test")
		require.NoError(t, err)
		_, err = Value(e, scope)
		require.Error(t, err)
		assert.True(t, model.IsUnresolvedReference(err))
		assert.ErrorContains(t, err, "node.missing.output.x")
	})

	t.Run("field not found names the path", func(t *testing.T) {
		e, err := model.ParseExpr("node.fetch.output.response.json", "test")
		require.NoError(t, err)
		_, err = Value(e, scope)
		require.Error(t, err)
		assert.True(t, model.IsFieldNotFound(err))
		assert.ErrorContains(t, err, "response.json")
	})
}

func TestString(t *testing.T) {
	scope := scopeWith(t, map[string]cty.Value{
		"calc": cty.ObjectVal(map[string]cty.Value{
			"n":    cty.NumberFloatVal(1.5),
			"big":  cty.NumberIntVal(42),
			"ok":   cty.False,
			"meta": cty.ObjectVal(map[string]cty.Value{"b": cty.True, "a": cty.NumberIntVal(1)}),
			"list": cty.TupleVal([]cty.Value{cty.StringVal("x"), cty.NumberIntVal(2)}),
		}),
	})

	parse := func(src string) *model.Expr {
		e, err := model.ParseTemplate(src, "test")
		require.NoError(t, err)
		return e
	}

	t.Run("plain text passes through", func(t *testing.T) {
		s, err := String(parse("hello"), scope)
		require.NoError(t, err)
		assert.Equal(t, "hello", s)
	})

	t.Run("numbers render canonically", func(t *testing.T) {
		s, err := String(parse("n=${node.calc.output.n} big=${node.calc.output.big}"), scope)
		require.NoError(t, err)
		assert.Equal(t, "n=1.5 big=42", s)
	})

	t.Run("bools render as words", func(t *testing.T) {
		s, err := String(parse("ok=${node.calc.output.ok}"), scope)
		require.NoError(t, err)
		assert.Equal(t, "ok=false", s)
	})

	t.Run("objects render as compact JSON with sorted keys", func(t *testing.T) {
		s, err := String(parse("meta: ${node.calc.output.meta}"), scope)
		require.NoError(t, err)
		assert.Equal(t, `meta: {"a":1,"b":true}`, s)
	})

	t.Run("lone interpolation of a list renders as JSON", func(t *testing.T) {
		s, err := String(parse("${node.calc.output.list}"), scope)
		require.NoError(t, err)
		assert.Equal(t, `["x",2]`, s)
	})

	t.Run("resolution is recursive through operators", func(t *testing.T) {
		s, err := String(parse("${node.calc.output.big + 8}"), scope)
		require.NoError(t, err)
		assert.Equal(t, "50", s)
	})
}

func TestStringify(t *testing.T) {
	cases := []struct {
		name string
		val  cty.Value
		want string
	}{
		{"string", cty.StringVal("x"), "x"},
		{"int", cty.NumberIntVal(7), "7"},
		{"float", cty.NumberFloatVal(0.25), "0.25"},
		{"true", cty.True, "true"},
		{"map", cty.MapVal(map[string]cty.Value{"k": cty.StringVal("v")}), `{"k":"v"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Stringify(tc.val)
			require.NoError(t, err)
			assert.Equal(t, tc.want, s)
		})
	}

	t.Run("null is an error", func(t *testing.T) {
		_, err := Stringify(cty.NullVal(cty.String))
		assert.Error(t, err)
	})
}

func TestValueMapAndStringMap(t *testing.T) {
	scope := scopeWith(t, map[string]cty.Value{
		"in": cty.ObjectVal(map[string]cty.Value{"q": cty.StringVal("leads"), "n": cty.NumberIntVal(3)}),
	})

	t.Run("value map keeps structure", func(t *testing.T) {
		q, err := model.ParseExpr("node.in.output.q", "test")
		require.NoError(t, err)
		n, err := model.ParseExpr("node.in.output.n", "test")
		require.NoError(t, err)

		got, err := ValueMap(map[string]*model.Expr{"q": q, "n": n}, scope)
		require.NoError(t, err)
		assert.True(t, cty.StringVal("leads").RawEquals(got["q"]))
		assert.True(t, cty.NumberIntVal(3).RawEquals(got["n"]))
	})

	t.Run("string map stringifies", func(t *testing.T) {
		n, err := model.ParseTemplate("${node.in.output.n}", "test")
		require.NoError(t, err)

		got, err := StringMap(map[string]*model.Expr{"count": n}, scope)
		require.NoError(t, err)
		assert.Equal(t, "3", got["count"])
	})

	t.Run("error names the key", func(t *testing.T) {
		bad, err := model.ParseExpr("node.gone.output.x", "test")
		require.NoError(t, err)
		_, err = ValueMap(map[string]*model.Expr{"arg": bad}, scope)
		assert.ErrorContains(t, err, "arg")
	})
}

func TestScope(t *testing.T) {
	t.Run("first record wins", func(t *testing.T) {
		s := NewScope()
		s.Record("a", cty.ObjectVal(map[string]cty.Value{"v": cty.NumberIntVal(1)}))
		s.Record("a", cty.ObjectVal(map[string]cty.Value{"v": cty.NumberIntVal(2)}))

		out, ok := s.Output("a")
		require.True(t, ok)
		v, err := ApplyPath(out, cty.Path{cty.GetAttrStep{Name: "v"}})
		require.NoError(t, err)
		assert.True(t, cty.NumberIntVal(1).RawEquals(v))
	})

	t.Run("eval context shape", func(t *testing.T) {
		s := NewScope()
		s.Record("a", cty.ObjectVal(map[string]cty.Value{"v": cty.StringVal("x")}))

		ctx := s.EvalContext()
		nodeVar, ok := ctx.Variables[model.RefRoot]
		require.True(t, ok)
		a := nodeVar.GetAttr("a")
		assert.True(t, a.Type().HasAttribute("output"))
	})
}
