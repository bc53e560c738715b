package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/xjson"
)

// BadgerStore persists workflows and runs in an embedded Badger
// database, one key per record under the shared key layout.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the database under dir. A nil logger
// silences Badger's own logging.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if logger != nil {
		opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) SaveWorkflow(_ context.Context, wf *model.Workflow) (*model.Workflow, error) {
	cp, err := normalizeDraft(wf)
	if err != nil {
		return nil, err
	}
	data, err := model.EncodeWorkflow(cp)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(wfKey(cp.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *BadgerStore) LoadWorkflow(_ context.Context, id string) (*model.Workflow, error) {
	data, err := s.get(wfKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, model.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.DecodeWorkflow(data)
}

func (s *BadgerStore) LoadPublished(_ context.Context, id string) (*model.Workflow, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pubKey(id))
		if err == nil {
			data, err = item.ValueCopy(nil)
			return err
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			if _, herr := txn.Get(wfKey(id)); herr == nil {
				return model.ErrNotPublished
			}
			return model.ErrWorkflowNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return model.DecodeWorkflow(data)
}

func (s *BadgerStore) Publish(_ context.Context, id string) (*model.Workflow, error) {
	var snap *model.Workflow
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(wfKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.ErrWorkflowNotFound
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		draft, err := model.DecodeWorkflow(data)
		if err != nil {
			return err
		}
		snap, err = publishSnapshot(draft)
		if err != nil {
			return err
		}
		snapData, err := model.EncodeWorkflow(snap)
		if err != nil {
			return err
		}
		draft.Version++
		draftData, err := model.EncodeWorkflow(draft)
		if err != nil {
			return err
		}
		if err := txn.Set(pubKey(id), snapData); err != nil {
			return err
		}
		return txn.Set(wfKey(id), draftData)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *BadgerStore) DeleteWorkflow(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, herr := txn.Get(wfKey(id))
		headMissing := errors.Is(herr, badger.ErrKeyNotFound)
		if herr != nil && !headMissing {
			return herr
		}
		_, perr := txn.Get(pubKey(id))
		pubMissing := errors.Is(perr, badger.ErrKeyNotFound)
		if perr != nil && !pubMissing {
			return perr
		}
		if headMissing && pubMissing {
			return model.ErrWorkflowNotFound
		}
		if !headMissing {
			if err := txn.Delete(wfKey(id)); err != nil {
				return err
			}
		}
		if !pubMissing {
			if err := txn.Delete(pubKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) ListWorkflows(_ context.Context) ([]*model.Workflow, error) {
	return s.list(false)
}

func (s *BadgerStore) ListPublished(_ context.Context) ([]*model.Workflow, error) {
	return s.list(true)
}

func (s *BadgerStore) list(published bool) ([]*model.Workflow, error) {
	var out []*model.Workflow
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(wfPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if strings.HasSuffix(string(item.Key()), pubSuffix) != published {
				continue
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			wf, err := model.DecodeWorkflow(data)
			if err != nil {
				return err
			}
			out = append(out, wf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *BadgerStore) SaveRun(_ context.Context, doc *runstore.Doc) error {
	data, err := xjson.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(doc.ID), data)
	})
}

func (s *BadgerStore) LoadRun(_ context.Context, id string) (*runstore.Doc, error) {
	data, err := s.get(runKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, model.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc runstore.Doc
	if err := xjson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// badgerLogger adapts Badger's printf logger onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
