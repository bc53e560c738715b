// Package mcpserver exposes published workflows as MCP tools. Each
// published workflow becomes one tool whose input schema is derived from
// the workflow's input-node fields; calling the tool runs the workflow
// and returns the archived run record as JSON. The server speaks stdio
// or HTTP+SSE, the latter with a /healthz probe.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/xjson"
)

// Config assembles a Server. Store and Engine are required; Name and
// Version default to "flowgrid" and "dev", Logger to slog.Default().
type Config struct {
	Store   store.Store
	Engine  *engine.Engine
	Name    string
	Version string
	Logger  *slog.Logger
}

// Server wraps an MCP server around a workflow store and engine. The
// tool set is computed once, at construction, from the store's published
// snapshots.
type Server struct {
	mcp    *server.MCPServer
	store  store.Store
	engine *engine.Engine
	logger *slog.Logger

	// toolNames maps workflow id to the registered tool name.
	toolNames map[string]string

	httpSrv *http.Server
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("mcp server needs a store")
	}
	if cfg.Engine == nil {
		return nil, errors.New("mcp server needs an engine")
	}
	name := cfg.Name
	if name == "" {
		name = "flowgrid"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		store:     cfg.Store,
		engine:    cfg.Engine,
		logger:    logger,
		toolNames: make(map[string]string),
	}

	s.registerCoreTools()
	if err := s.registerWorkflowTools(ctx); err != nil {
		return nil, err
	}

	logger.Info("🔌 MCP server ready.", "name", name, "workflow_tools", len(s.toolNames))
	return s, nil
}

// MCP returns the underlying MCP server, for embedding into an existing
// HTTP mux or test harness.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerCoreTools() {
	listTool := mcp.NewTool("list_workflows",
		mcp.WithDescription("List the published workflows this server can run, with the tool name each one is registered under"),
	)
	s.mcp.AddTool(listTool, s.handleListWorkflows)

	runTool := mcp.NewTool("get_run",
		mcp.WithDescription("Fetch an archived workflow run by id"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run id returned by a workflow tool"),
		),
	)
	s.mcp.AddTool(runTool, s.handleGetRun)
}

// registerWorkflowTools turns every published workflow into a tool. Tool
// names come from the workflow name, falling back to the id when the
// name is empty or already taken.
func (s *Server) registerWorkflowTools(ctx context.Context) error {
	wfs, err := s.store.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published workflows: %w", err)
	}

	taken := map[string]bool{"list_workflows": true, "get_run": true}
	for _, wf := range wfs {
		name := sanitizeToolName(wf.Name)
		if name == "" || taken[name] {
			name = sanitizeToolName(wf.ID)
		}
		taken[name] = true

		tool, jsonFields := workflowTool(name, wf)
		s.mcp.AddTool(tool, s.runHandler(wf.ID, jsonFields))
		s.toolNames[wf.ID] = name
		s.logger.Debug("Registered workflow tool.", "tool", name, "workflow_id", wf.ID, "version", wf.Version)
	}
	return nil
}

var toolNameRE = regexp.MustCompile(`[^a-z0-9_-]+`)

func sanitizeToolName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = toolNameRE.ReplaceAllString(s, "_")
	return strings.Trim(s, "_-")
}

// workflowTool builds the MCP tool for one workflow. Its input schema
// lists the declared fields of the workflow's input nodes: strings,
// numbers, booleans and sequences map onto the matching JSON schema
// types; everything else travels as a JSON-encoded string, and the
// returned set names the fields the call handler must decode.
func workflowTool(name string, wf *model.Workflow) (mcp.Tool, map[string]bool) {
	display := wf.Name
	if display == "" {
		display = wf.ID
	}
	opts := []mcp.ToolOption{
		mcp.WithDescription(fmt.Sprintf("Run the %q workflow (version %d) and return the finished run as JSON", display, wf.Version)),
	}

	jsonFields := make(map[string]bool)
	seen := make(map[string]bool)
	for _, n := range wf.Nodes {
		if n.Kind != model.KindInput || n.Input == nil {
			continue
		}
		for _, f := range n.Input.Fields {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true

			var fieldOpts []mcp.PropertyOption
			if f.Required() {
				fieldOpts = append(fieldOpts, mcp.Required())
			}

			switch {
			case f.Type.Equals(cty.String):
				fieldOpts = append(fieldOpts, mcp.Description(fieldDescription(f)))
				opts = append(opts, mcp.WithString(f.Name, fieldOpts...))
			case f.Type.Equals(cty.Number):
				fieldOpts = append(fieldOpts, mcp.Description(fieldDescription(f)))
				opts = append(opts, mcp.WithNumber(f.Name, fieldOpts...))
			case f.Type.Equals(cty.Bool):
				fieldOpts = append(fieldOpts, mcp.Description(fieldDescription(f)))
				opts = append(opts, mcp.WithBoolean(f.Name, fieldOpts...))
			case f.Type.IsListType() || f.Type.IsSetType() || f.Type.IsTupleType():
				fieldOpts = append(fieldOpts, mcp.Description(fieldDescription(f)))
				opts = append(opts, mcp.WithArray(f.Name, fieldOpts...))
			default:
				fieldOpts = append(fieldOpts, mcp.Description(fieldDescription(f)+" Pass the value JSON-encoded."))
				opts = append(opts, mcp.WithString(f.Name, fieldOpts...))
				jsonFields[f.Name] = true
			}
		}
	}

	return mcp.NewTool(name, opts...), jsonFields
}

func fieldDescription(f *model.InputField) string {
	if f.Required() {
		return fmt.Sprintf("Required %s input.", f.Type.FriendlyName())
	}
	return fmt.Sprintf("Optional %s input; the workflow default applies when omitted.", f.Type.FriendlyName())
}

// runHandler runs one published workflow. The run record is returned as
// JSON either way; a failed run arrives as an error result so callers
// can tell without parsing.
func (s *Server) runHandler(workflowID string, jsonFields map[string]bool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := decodeArgs(request.GetArguments(), jsonFields)

		run, err := s.engine.RunWorkflow(ctx, workflowID, input)
		if run == nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, merr := xjson.MarshalIndent(run.Doc(), "", "  ")
		if merr != nil {
			return mcp.NewToolResultError(merr.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(string(data)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// decodeArgs re-inflates the fields workflowTool flattened to JSON
// strings. Values that fail to parse pass through untouched so the run
// itself reports the type mismatch.
func decodeArgs(args map[string]any, jsonFields map[string]bool) map[string]any {
	if len(jsonFields) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if raw, ok := v.(string); ok && jsonFields[k] {
			var decoded any
			if err := xjson.Unmarshal([]byte(raw), &decoded); err == nil {
				v = decoded
			}
		}
		out[k] = v
	}
	return out
}

type workflowSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Version int    `json:"version"`
	Nodes   int    `json:"nodes"`
	Tool    string `json:"tool,omitempty"`
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wfs, err := s.store.ListPublished(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summaries := make([]workflowSummary, 0, len(wfs))
	for _, wf := range wfs {
		summaries = append(summaries, workflowSummary{
			ID:      wf.ID,
			Name:    wf.Name,
			Owner:   wf.Owner,
			Version: wf.Version,
			Nodes:   len(wf.Nodes),
			Tool:    s.toolNames[wf.ID],
		})
	}

	data, err := xjson.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, ok := args["run_id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	doc, err := s.store.LoadRun(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := xjson.MarshalIndent(doc, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves the MCP protocol over stdin/stdout and blocks until
// the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("🔌 Serving MCP over stdio.")
	return server.ServeStdio(s.mcp)
}

// Serve runs the HTTP surface on addr until ctx is canceled: the MCP
// SSE endpoints under /mcp plus a /healthz probe.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	sse := server.NewSSEServer(s.mcp, server.WithStaticBasePath("/mcp"))
	mux.HandleFunc("/mcp/sse", sse.ServeHTTP)
	mux.HandleFunc("/mcp/message", sse.ServeHTTP)
	mux.HandleFunc("/healthz", s.healthHandler)

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 MCP server listening.", "address", fmt.Sprintf("http://localhost%s/mcp/sse", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutting down MCP server...")
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
