package app

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/hclflow"
	"github.com/vk/flowgridgo/internal/mcpserver"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/store"
)

// serve opens the workflow store, optionally publishes the flow at
// FlowPath into it, and exposes every published workflow over MCP until
// ctx is canceled.
func (a *App) serve(ctx context.Context) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if a.config.FlowPath != "" {
		if _, err := a.publishFlow(ctx, st); err != nil {
			return err
		}
	}

	eng := engine.New(engine.Config{
		Store:   st,
		Workers: a.config.Workers,
		Logger:  a.logger,
	})
	srv, err := mcpserver.New(ctx, mcpserver.Config{
		Store:  st,
		Engine: eng,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	if a.config.Addr == "" {
		return srv.ServeStdio(ctx)
	}
	return srv.Serve(ctx, a.config.Addr)
}

// openStore picks the serve-mode backend: Badger under DataDir when set,
// otherwise in-memory.
func (a *App) openStore() (store.Store, error) {
	if a.config.DataDir == "" {
		a.logger.Warn("No data directory configured, workflows live in memory only.")
		return store.NewMemStore(), nil
	}
	st, err := store.OpenBadger(a.config.DataDir, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// publishFlow loads the flow at FlowPath and saves it as a published
// workflow, so a fresh store has something to serve immediately.
func (a *App) publishFlow(ctx context.Context, st store.Store) (*model.Workflow, error) {
	wf, err := hclflow.Load(ctx, a.config.FlowPath)
	if err != nil {
		return nil, fmt.Errorf("load flow: %w", err)
	}
	saved, err := st.SaveWorkflow(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}
	snap, err := st.Publish(ctx, saved.ID)
	if err != nil {
		return nil, fmt.Errorf("publish workflow: %w", err)
	}
	a.logger.Info("Published flow into store.", "workflow_id", snap.ID, "name", snap.Name, "version", snap.Version)
	return snap, nil
}
