package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/flowgridgo/internal/ctxlog"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. Results go to outW; logs go to errW so serve mode keeps
// stdout clean for the MCP protocol.
type App struct {
	outW   io.Writer
	errW   io.Writer
	logger *slog.Logger
	config *Config
}

// New is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func New(outW, errW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg, errW)
	logger.Debug("Logger configured successfully.")
	return &App{outW: outW, errW: errW, logger: logger, config: cfg}
}

// Run executes the mode the configuration selects.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	switch {
	case a.config.Serve:
		return a.serve(ctx)
	case a.config.Check:
		return a.checkFlow(ctx)
	default:
		return a.runFlow(ctx)
	}
}
