package store

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/xjson"
)

// MemStore keeps everything in process memory. Values are stored
// encoded, so loads always hand back independent copies.
type MemStore struct {
	mu     sync.RWMutex
	drafts map[string][]byte
	pubs   map[string][]byte
	runs   map[string][]byte
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		drafts: make(map[string][]byte),
		pubs:   make(map[string][]byte),
		runs:   make(map[string][]byte),
	}
}

func (s *MemStore) SaveWorkflow(_ context.Context, wf *model.Workflow) (*model.Workflow, error) {
	cp, err := normalizeDraft(wf)
	if err != nil {
		return nil, err
	}
	data, err := model.EncodeWorkflow(cp)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.drafts[cp.ID] = data
	s.mu.Unlock()
	return cp, nil
}

func (s *MemStore) LoadWorkflow(_ context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	data, ok := s.drafts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrWorkflowNotFound
	}
	return model.DecodeWorkflow(data)
}

func (s *MemStore) LoadPublished(_ context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	data, ok := s.pubs[id]
	_, hasDraft := s.drafts[id]
	s.mu.RUnlock()
	if !ok {
		if hasDraft {
			return nil, model.ErrNotPublished
		}
		return nil, model.ErrWorkflowNotFound
	}
	return model.DecodeWorkflow(data)
}

func (s *MemStore) Publish(ctx context.Context, id string) (*model.Workflow, error) {
	draft, err := s.LoadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := publishSnapshot(draft)
	if err != nil {
		return nil, err
	}
	snapData, err := model.EncodeWorkflow(snap)
	if err != nil {
		return nil, err
	}
	draft.Version++
	draftData, err := model.EncodeWorkflow(draft)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pubs[id] = snapData
	s.drafts[id] = draftData
	s.mu.Unlock()
	return snap, nil
}

func (s *MemStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasDraft := s.drafts[id]
	_, hasPub := s.pubs[id]
	if !hasDraft && !hasPub {
		return model.ErrWorkflowNotFound
	}
	delete(s.drafts, id)
	delete(s.pubs, id)
	return nil
}

func (s *MemStore) ListWorkflows(_ context.Context) ([]*model.Workflow, error) {
	return s.decodeAll(func() map[string][]byte { return s.drafts })
}

func (s *MemStore) ListPublished(_ context.Context) ([]*model.Workflow, error) {
	return s.decodeAll(func() map[string][]byte { return s.pubs })
}

func (s *MemStore) decodeAll(pick func() map[string][]byte) ([]*model.Workflow, error) {
	s.mu.RLock()
	m := pick()
	encoded := make([][]byte, 0, len(m))
	for _, data := range m {
		encoded = append(encoded, data)
	}
	s.mu.RUnlock()

	out := make([]*model.Workflow, 0, len(encoded))
	for _, data := range encoded {
		wf, err := model.DecodeWorkflow(data)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) SaveRun(_ context.Context, doc *runstore.Doc) error {
	data, err := xjson.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.runs[doc.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemStore) LoadRun(_ context.Context, id string) (*runstore.Doc, error) {
	s.mu.RLock()
	data, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrRunNotFound
	}
	var doc runstore.Doc
	if err := xjson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *MemStore) Close() error { return nil }
