package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowPathForms(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"long flag", []string{"-flow", "greeter.hcl"}},
		{"shorthand", []string{"-f", "greeter.hcl"}},
		{"positional", []string{"greeter.hcl"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, exit, err := Parse(tc.args, &bytes.Buffer{})
			require.NoError(t, err)
			require.False(t, exit)
			assert.Equal(t, "greeter.hcl", cfg.FlowPath)
		})
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, exit, err := Parse([]string{"greeter.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0, cfg.Workers)
	assert.False(t, cfg.Check)
	assert.False(t, cfg.Serve)
	assert.Empty(t, cfg.InputJSON)
	assert.Empty(t, cfg.DataDir)
}

func TestParseFullSet(t *testing.T) {
	cfg, exit, err := Parse([]string{
		"-flow", "flows/",
		"-input", `{"name": "Ada"}`,
		"-workers", "8",
		"-log-level", "DEBUG",
		"-log-format", "TEXT",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "flows/", cfg.FlowPath)
	assert.Equal(t, `{"name": "Ada"}`, cfg.InputJSON)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestParseServeMode(t *testing.T) {
	cfg, exit, err := Parse([]string{"-serve", "-addr", ":8080", "-data", "/var/lib/flowgrid"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)

	assert.True(t, cfg.Serve)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/var/lib/flowgrid", cfg.DataDir)
	assert.Empty(t, cfg.FlowPath, "serve mode does not require a flow path")
}

func TestParseNoArgsPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseHelpFlag(t *testing.T) {
	cfg, exit, err := Parse([]string{"-h"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		message string
	}{
		{"unknown flag", []string{"-bogus"}, "flag provided but not defined"},
		{"bad log level", []string{"-log-level", "loud", "greeter.hcl"}, "invalid log-level"},
		{"bad log format", []string{"-log-format", "xml", "greeter.hcl"}, "invalid log-format"},
		{"check with serve", []string{"-check", "-serve", "greeter.hcl"}, "mutually exclusive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			exitErr, ok := err.(*ExitError)
			require.True(t, ok, "expected an ExitError")
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.message)
		})
	}
}
