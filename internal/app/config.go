package app

import "errors"

// Config holds everything an App instance needs to run one mode.
type Config struct {
	// FlowPath points at a .hcl flow file or a directory of them.
	FlowPath string

	// InputJSON carries the run input as a JSON object, run mode only.
	InputJSON string

	// Check validates the flow and reports findings without running it.
	Check bool

	// Serve exposes published workflows over MCP instead of running once.
	Serve bool

	// Addr is the HTTP listen address in serve mode. Empty serves stdio.
	Addr string

	// DataDir is the Badger directory backing serve mode. Empty keeps
	// everything in memory.
	DataDir string

	LogFormat string
	LogLevel  string
	Workers   int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.FlowPath == "" && !cfg.Serve {
		return nil, errors.New("a flow path is required unless running in serve mode")
	}
	if cfg.Check && cfg.Serve {
		return nil, errors.New("check and serve modes are mutually exclusive")
	}
	return &cfg, nil
}
