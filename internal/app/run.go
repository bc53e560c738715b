package app

import (
	"context"
	"fmt"

	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/hclflow"
	"github.com/vk/flowgridgo/internal/validate"
	"github.com/vk/flowgridgo/internal/xjson"
)

// runFlow loads a flow from disk, executes it once, and prints the run
// record as JSON. A failed run still prints its record before the error
// propagates to the exit code.
func (a *App) runFlow(ctx context.Context) error {
	wf, err := hclflow.Load(ctx, a.config.FlowPath)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}

	input, err := parseInput(a.config.InputJSON)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{Workers: a.config.Workers, Logger: a.logger})
	run, runErr := eng.RunDefinition(ctx, wf, input)
	if run == nil {
		return runErr
	}

	data, err := xjson.MarshalIndent(run.Doc(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	fmt.Fprintln(a.outW, string(data))
	return runErr
}

// checkFlow validates a flow and reports every finding without running
// anything.
func (a *App) checkFlow(ctx context.Context) error {
	wf, err := hclflow.Load(ctx, a.config.FlowPath)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}

	res := validate.Workflow(wf)
	for _, issue := range res.Warnings {
		fmt.Fprintf(a.outW, "warning: %s\n", issue)
	}
	for _, issue := range res.Errors {
		fmt.Fprintf(a.outW, "error: %s\n", issue)
	}
	if !res.OK() {
		return res.Err(wf.ID)
	}

	a.logger.Info("✅ Workflow is valid.", "workflow_id", wf.ID, "nodes", len(wf.Nodes), "warnings", len(res.Warnings))
	return nil
}

func parseInput(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var input map[string]any
	if err := xjson.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("parse run input: %w", err)
	}
	return input, nil
}
