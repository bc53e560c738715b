// Package store persists workflows and archived runs behind a single
// port with two adapters: an in-memory store for tests and embedding,
// and a Badger-backed store for the serve mode.
//
// Workflows live twice under one id: a mutable draft head that edits
// land on, and an immutable published snapshot that runs execute
// against. Publishing validates the draft, freezes it, and bumps the
// draft's version, so the snapshot a caller runs can never change
// underneath an in-flight run.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/validate"
)

// Store is the persistence port for workflow lifecycle and run archival.
// Implementations return model.ErrWorkflowNotFound, model.ErrNotPublished
// and model.ErrRunNotFound so callers can classify misses.
type Store interface {
	// SaveWorkflow stores wf as the draft head for its id, assigning an
	// id and version when absent. The stored draft is never published;
	// the returned copy reflects what was written.
	SaveWorkflow(ctx context.Context, wf *model.Workflow) (*model.Workflow, error)

	// LoadWorkflow returns the draft head.
	LoadWorkflow(ctx context.Context, id string) (*model.Workflow, error)

	// LoadPublished returns the published snapshot. A workflow that only
	// exists as a draft yields model.ErrNotPublished.
	LoadPublished(ctx context.Context, id string) (*model.Workflow, error)

	// Publish validates the draft head, freezes it as the published
	// snapshot, and bumps the draft's version. Returns the snapshot.
	Publish(ctx context.Context, id string) (*model.Workflow, error)

	// DeleteWorkflow removes the draft head and any published snapshot.
	DeleteWorkflow(ctx context.Context, id string) error

	// ListWorkflows returns every draft head, sorted by id.
	ListWorkflows(ctx context.Context) ([]*model.Workflow, error)

	// ListPublished returns every published snapshot, sorted by id.
	ListPublished(ctx context.Context) ([]*model.Workflow, error)

	// SaveRun archives a completed run document.
	SaveRun(ctx context.Context, doc *runstore.Doc) error

	// LoadRun returns an archived run document.
	LoadRun(ctx context.Context, id string) (*runstore.Doc, error)

	Close() error
}

// Key layout shared by the adapters: "wf:<id>" holds the draft head,
// "wf:<id>@pub" the published snapshot, "run:<id>" an archived run.
const (
	wfPrefix  = "wf:"
	runPrefix = "run:"
	pubSuffix = "@pub"
)

func wfKey(id string) []byte  { return []byte(wfPrefix + id) }
func pubKey(id string) []byte { return []byte(wfPrefix + id + pubSuffix) }
func runKey(id string) []byte { return []byte(runPrefix + id) }

// normalizeDraft deep-copies wf through the codec, fills identity fields
// and clears the published flag. Saving never publishes.
func normalizeDraft(wf *model.Workflow) (*model.Workflow, error) {
	cp, err := copyWorkflow(wf)
	if err != nil {
		return nil, err
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Version <= 0 {
		cp.Version = 1
	}
	cp.Published = false
	return cp, nil
}

// publishSnapshot validates a draft and returns its frozen published
// form at the draft's current version.
func publishSnapshot(draft *model.Workflow) (*model.Workflow, error) {
	if res := validate.Workflow(draft); !res.OK() {
		return nil, res.Err(draft.ID)
	}
	snap, err := copyWorkflow(draft)
	if err != nil {
		return nil, err
	}
	snap.Published = true
	return snap, nil
}

// copyWorkflow round-trips a workflow through the JSON codec. Both
// adapters store encoded bytes, so the codec is the natural deep copy
// and keeps stored and in-memory forms from drifting apart.
func copyWorkflow(wf *model.Workflow) (*model.Workflow, error) {
	data, err := model.EncodeWorkflow(wf)
	if err != nil {
		return nil, err
	}
	return model.DecodeWorkflow(data)
}
