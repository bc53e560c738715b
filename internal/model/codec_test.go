package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const sampleDoc = `{
  "id": "wf-lead",
  "name": "lead-qualifier",
  "owner": "growth",
  "version": 3,
  "published": true,
  "timeout": "2m",
  "nodes": [
    {
      "id": "intake",
      "kind": "input",
      "input": {
        "fields": [
          {"name": "subject_id", "type": "string"},
          {"name": "depth", "type": "number", "default": 1}
        ]
      }
    },
    {
      "id": "fetch",
      "kind": "http",
      "timeout": "10s",
      "http": {
        "method": "GET",
        "url": "https://api.example.com/leads/${node.intake.output.subject_id}",
        "headers": {"Accept": "application/json"},
        "query": {"depth": "${node.intake.output.depth}"}
      }
    },
    {
      "id": "route",
      "kind": "condition",
      "condition": {"expression": "node.fetch.output.response.ok"}
    },
    {
      "id": "summarize",
      "kind": "llm",
      "llm": {
        "model": "summarizer-large",
        "messages": [
          {"role": "system", "content": "You qualify sales leads."},
          {"role": "user", "content": "Qualify: ${node.fetch.output.response.body}"}
        ],
        "output_schema": "object({verdict=string, score=number})"
      }
    },
    {
      "id": "report",
      "kind": "template",
      "template": {"body": "Lead ${node.intake.output.subject_id}: ${node.summarize.output.answer.verdict}"}
    },
    {
      "id": "final",
      "kind": "output",
      "output": {"values": {"report": "node.report.output.template", "score": "node.summarize.output.answer.score"}}
    }
  ],
  "edges": [
    {"from": "intake", "to": "fetch"},
    {"from": "fetch", "to": "route"},
    {"from": "route", "to": "summarize", "branch": "true"},
    {"from": "summarize", "to": "report"},
    {"from": "report", "to": "final"}
  ]
}`

func TestDecodeWorkflow(t *testing.T) {
	wf, err := DecodeWorkflow([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "wf-lead", wf.ID)
	assert.Equal(t, "lead-qualifier", wf.Name)
	assert.Equal(t, 3, wf.Version)
	assert.True(t, wf.Published)
	assert.Equal(t, 2*time.Minute, wf.Timeout)
	require.Len(t, wf.Nodes, 6)
	require.Len(t, wf.Edges, 5)

	t.Run("input fields", func(t *testing.T) {
		intake, ok := wf.NodeByID("intake")
		require.True(t, ok)
		require.NotNil(t, intake.Input)
		require.Len(t, intake.Input.Fields, 2)

		subject, ok := intake.Input.Field("subject_id")
		require.True(t, ok)
		assert.Equal(t, cty.String, subject.Type)
		assert.True(t, subject.Required())

		depth, ok := intake.Input.Field("depth")
		require.True(t, ok)
		assert.Equal(t, cty.Number, depth.Type)
		assert.False(t, depth.Required())
		assert.True(t, cty.NumberIntVal(1).RawEquals(depth.Default))
	})

	t.Run("http node references", func(t *testing.T) {
		fetch, ok := wf.NodeByID("fetch")
		require.True(t, ok)
		require.NotNil(t, fetch.HTTP)
		assert.Equal(t, "GET", fetch.HTTP.Method)
		assert.Equal(t, 10*time.Second, fetch.Timeout)

		refs := fetch.Refs()
		nodes := map[string]bool{}
		for _, r := range refs {
			nodes[r.Node] = true
		}
		assert.True(t, nodes["intake"])
	})

	t.Run("llm schema and messages", func(t *testing.T) {
		sum, ok := wf.NodeByID("summarize")
		require.True(t, ok)
		require.NotNil(t, sum.LLM)
		assert.Equal(t, "summarizer-large", sum.LLM.Model)
		require.Len(t, sum.LLM.Messages, 2)
		assert.True(t, sum.LLM.Messages[0].Content.Literal())
		assert.False(t, sum.LLM.Messages[1].Content.Literal())
		assert.True(t, sum.LLM.OutputSchema.HasAttribute("verdict"))
	})

	t.Run("condition labels", func(t *testing.T) {
		route, ok := wf.NodeByID("route")
		require.True(t, ok)
		require.NotNil(t, route.Condition)
		assert.Equal(t, []string{"true", "false"}, route.Condition.Labels())
	})

	t.Run("edge branch labels", func(t *testing.T) {
		var labeled *Edge
		for i := range wf.Edges {
			if wf.Edges[i].Branch != "" {
				labeled = &wf.Edges[i]
			}
		}
		require.NotNil(t, labeled)
		assert.Equal(t, "route", labeled.From)
		assert.Equal(t, "true", labeled.Branch)
	})
}

func TestEncodeWorkflowRoundTrip(t *testing.T) {
	wf, err := DecodeWorkflow([]byte(sampleDoc))
	require.NoError(t, err)

	data, err := EncodeWorkflow(wf)
	require.NoError(t, err)

	again, err := DecodeWorkflow(data)
	require.NoError(t, err)

	assert.Equal(t, wf.ID, again.ID)
	assert.Equal(t, wf.Timeout, again.Timeout)
	require.Len(t, again.Nodes, len(wf.Nodes))
	require.Len(t, again.Edges, len(wf.Edges))

	fetch, ok := again.NodeByID("fetch")
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com/leads/${node.intake.output.subject_id}", fetch.HTTP.URL.Source())

	final, ok := again.NodeByID("final")
	require.True(t, ok)
	assert.Equal(t, "node.report.output.template", final.Output.Values["report"].Source())
}

func TestDecodeWorkflowErrors(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		doc := `{"id": "x", "nodes": [{"id": "a", "kind": "shell"}]}`
		_, err := DecodeWorkflow([]byte(doc))
		assert.ErrorContains(t, err, "unknown node kind")
	})

	t.Run("bad timeout", func(t *testing.T) {
		doc := `{"id": "x", "timeout": "soon", "nodes": []}`
		_, err := DecodeWorkflow([]byte(doc))
		assert.ErrorContains(t, err, "timeout")
	})

	t.Run("malformed expression", func(t *testing.T) {
		doc := `{"id": "x", "nodes": [{"id": "c", "kind": "condition", "condition": {"expression": "node.a.output.n >"}}]}`
		_, err := DecodeWorkflow([]byte(doc))
		assert.ErrorContains(t, err, "condition.expression")
	})

	t.Run("bad reference root in template", func(t *testing.T) {
		doc := `{"id": "x", "nodes": [{"id": "t", "kind": "template", "template": {"body": "v: ${steps.a.output.v}"}}]}`
		_, err := DecodeWorkflow([]byte(doc))
		assert.ErrorContains(t, err, "unknown reference root")
	})

	t.Run("default must fit declared type", func(t *testing.T) {
		doc := `{"id": "x", "nodes": [{"id": "in", "kind": "input", "input": {"fields": [{"name": "n", "type": "number", "default": {"nested": true}}]}}]}`
		_, err := DecodeWorkflow([]byte(doc))
		assert.ErrorContains(t, err, "does not fit type")
	})

	t.Run("explicit expr wrapper in a template field", func(t *testing.T) {
		doc := `{"id": "x", "nodes": [{"id": "t", "kind": "template", "template": {"body": {"$expr": "upper(\"hi\")"}}}]}`
		wf, err := DecodeWorkflow([]byte(doc))
		require.NoError(t, err)
		tpl, ok := wf.NodeByID("t")
		require.True(t, ok)
		assert.Equal(t, FormExpression, tpl.Template.Body.Form())
	})
}

func TestFromGoValueRoundTrip(t *testing.T) {
	in := map[string]any{
		"name":  "ada",
		"count": float64(2),
		"ok":    true,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"depth": float64(3)},
	}
	v, err := FromGoValue(in)
	require.NoError(t, err)
	require.True(t, v.Type().IsObjectType())

	out, ok := ToGoValue(v).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", out["name"])
	assert.Equal(t, int64(2), out["count"])
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, []any{"a", "b"}, out["tags"])
}
