// Package engine drives workflow runs end to end: validate the graph,
// schedule its nodes, settle the run outcome from what the output nodes
// produced, and archive the finished run.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/nodes"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/scheduler"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/validate"
)

// Config assembles an Engine. Zero fields fall back to defaults: the
// built-in node registry, default capabilities, scheduler.DefaultWorkers,
// and slog.Default().
type Config struct {
	// Store backs RunWorkflow lookups and archives finished runs. An
	// engine without one can still execute definitions directly.
	Store store.Store

	Caps     *capability.Set
	Registry *nodes.Registry
	Workers  int
	Logger   *slog.Logger
}

// Engine executes workflows. It is safe for concurrent use; each run
// carries its own state.
type Engine struct {
	store  store.Store
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store: cfg.Store,
		sched: scheduler.New(scheduler.Options{
			Workers:  cfg.Workers,
			Registry: cfg.Registry,
			Caps:     cfg.Caps,
		}),
		logger: logger,
	}
}

// RunWorkflow executes the published snapshot of a stored workflow.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID string, input map[string]any) (*runstore.Run, error) {
	if e.store == nil {
		return nil, errors.New("engine has no store configured")
	}
	wf, err := e.store.LoadPublished(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.RunDefinition(ctx, wf, input)
}

// RunDefinition validates and executes a workflow definition. The run is
// returned whenever execution started, regardless of outcome; the error
// is non-nil only when validation blocked the run or the run as a whole
// produced no output.
func (e *Engine) RunDefinition(ctx context.Context, wf *model.Workflow, input map[string]any) (*runstore.Run, error) {
	if res := validate.Workflow(wf); !res.OK() {
		return nil, res.Err(wf.ID)
	}

	run := runstore.New(wf.ID, wf.Version)
	logger := e.logger.With("workflow_id", wf.ID, "run_id", run.ID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("▶️ Run started.", "workflow", wf.Name, "version", wf.Version, "nodes", len(wf.Nodes))

	runCtx := ctx
	if wf.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, wf.Timeout)
		defer cancel()
	}

	e.sched.Run(runCtx, wf, run, input)

	status, outputs := settle(wf, run, logger)
	var runErr error
	if status == model.RunFailed {
		cause := runCtx.Err()
		if cause == nil {
			cause = model.ErrNoOutput
		}
		runErr = &model.RunError{RunID: run.ID, Err: cause}
	}
	run.Finish(status, outputs, runErr)

	switch status {
	case model.RunSucceeded:
		logger.Info("✅ Run finished.", "status", status, "outputs", len(outputs), "duration", run.EndedAt().Sub(run.StartedAt))
	case model.RunPartial:
		logger.Warn("Run finished with partial output.", "outputs", len(outputs), "duration", run.EndedAt().Sub(run.StartedAt))
	default:
		logger.Error("Run failed.", "error", runErr, "duration", run.EndedAt().Sub(run.StartedAt))
	}

	e.archive(ctx, run)
	return run, runErr
}

// settle derives the run outcome from its output nodes: succeeded when
// every one produced a result, partial when only some did, failed when
// none did. Their result objects merge into the run outputs; on key
// collision the later node in declaration order wins.
func settle(wf *model.Workflow, run *runstore.Run, logger *slog.Logger) (model.RunStatus, map[string]cty.Value) {
	outputs := make(map[string]cty.Value)
	var total, produced int
	for _, n := range wf.Nodes {
		if n.Kind != model.KindOutput {
			continue
		}
		total++
		res, ok := run.Result(n.ID)
		if !ok || res.Status != model.NodeSucceeded {
			continue
		}
		produced++
		if res.Output.IsNull() || !res.Output.Type().IsObjectType() {
			continue
		}
		for key, val := range res.Output.AsValueMap() {
			if _, exists := outputs[key]; exists {
				logger.Warn("Output key collides across output nodes, keeping the later value.", "key", key, "node_id", n.ID)
			}
			outputs[key] = val
		}
	}

	switch {
	case produced == 0:
		return model.RunFailed, nil
	case produced < total:
		return model.RunPartial, outputs
	default:
		return model.RunSucceeded, outputs
	}
}

func (e *Engine) archive(ctx context.Context, run *runstore.Run) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(ctx, run.Doc()); err != nil {
		e.logger.Warn("Failed to archive run.", "run_id", run.ID, "error", err)
	}
}
