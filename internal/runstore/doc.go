package runstore

import (
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/model"
)

// Doc is the serializable form of a run: what the CLI prints, what the
// MCP surface returns, and what the store archives.
type Doc struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"`
	WorkflowVersion int            `json:"workflow_version,omitempty"`
	Status          string         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         time.Time      `json:"ended_at,omitempty"`
	Error           string         `json:"error,omitempty"`
	Outputs         map[string]any `json:"outputs,omitempty"`
	Nodes           []NodeDoc      `json:"nodes"`
}

// NodeDoc is one node's record in a run document, in completion order.
type NodeDoc struct {
	NodeID     string            `json:"node_id"`
	Status     string            `json:"status"`
	Branch     string            `json:"branch,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	EndedAt    time.Time         `json:"ended_at,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Output     any               `json:"output,omitempty"`
	Usage      *model.TokenUsage `json:"usage,omitempty"`
}

// Doc snapshots the run into its serializable form. Output values become
// plain Go values so they JSON-encode naturally.
func (r *Run) Doc() *Doc {
	doc := &Doc{
		ID:              r.ID,
		WorkflowID:      r.WorkflowID,
		WorkflowVersion: r.WorkflowVersion,
		Status:          string(r.Status()),
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt(),
	}
	if err := r.Err(); err != nil {
		doc.Error = err.Error()
	}
	if outputs := r.Outputs(); len(outputs) > 0 {
		doc.Outputs = make(map[string]any, len(outputs))
		for k, v := range outputs {
			doc.Outputs[k] = model.ToGoValue(v)
		}
	}
	for _, res := range r.Results() {
		nd := NodeDoc{
			NodeID:     res.NodeID,
			Status:     string(res.Status),
			Branch:     res.Branch,
			StartedAt:  res.StartedAt,
			EndedAt:    res.EndedAt,
			DurationMS: res.Duration().Milliseconds(),
			Usage:      res.Usage,
		}
		if res.Err != nil {
			nd.Error = res.Err.Error()
		}
		if res.Status == model.NodeSucceeded && res.Output != cty.NilVal {
			nd.Output = model.ToGoValue(res.Output)
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}
