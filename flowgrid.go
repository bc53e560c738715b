// Package flowgrid provides an embeddable workflow execution engine.
//
// Workflows are directed acyclic graphs of typed nodes (input, llm,
// tool, condition, http, template, output) connected by explicit edges
// or by edges derived from expression references. A workflow is
// validated before anything executes; the run schedules every ready
// node concurrently, gates branches on condition results, and settles
// the outcome from what the output nodes produced.
//
// Basic usage:
//
//	wf, err := flowgrid.LoadFlow(ctx, "./flows/triage.hcl")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	eng := flowgrid.New(flowgrid.EngineConfig{})
//	run, err := eng.RunDefinition(ctx, wf, map[string]any{"subject": "printer on fire"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(run.Status(), run.Outputs())
//
// Stored workflows follow a draft/publish lifecycle: drafts are mutable,
// publishing validates and freezes a snapshot, and runs by id always
// execute the published snapshot. The MCP server exposes each published
// workflow as a callable tool.
package flowgrid

import (
	"context"
	"log/slog"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/engine"
	"github.com/vk/flowgridgo/internal/hclflow"
	"github.com/vk/flowgridgo/internal/mcpserver"
	"github.com/vk/flowgridgo/internal/model"
	"github.com/vk/flowgridgo/internal/nodes"
	"github.com/vk/flowgridgo/internal/runstore"
	"github.com/vk/flowgridgo/internal/store"
	"github.com/vk/flowgridgo/internal/validate"
)

// Workflow is a named DAG of nodes and edges plus run-level metadata.
type Workflow = model.Workflow

// Node is one unit of work in a workflow; exactly one kind-specific
// config field is set, matching its Kind.
type Node = model.Node

// Edge is a directed dependency between two nodes, optionally gated on
// a condition branch label.
type Edge = model.Edge

// Kind identifies what a node does when it executes.
type Kind = model.Kind

const (
	KindInput     = model.KindInput
	KindLLM       = model.KindLLM
	KindTool      = model.KindTool
	KindCondition = model.KindCondition
	KindHTTP      = model.KindHTTP
	KindTemplate  = model.KindTemplate
	KindOutput    = model.KindOutput
)

// Expr is a parsed expression or string template carrying the node
// references it mentions.
type Expr = model.Expr

// Ref names one node output path mentioned by an expression.
type Ref = model.Ref

// Node kind configurations.
type (
	InputField      = model.InputField
	InputConfig     = model.InputConfig
	LLMConfig       = model.LLMConfig
	Message         = model.Message
	ToolConfig      = model.ToolConfig
	ConditionCase   = model.ConditionCase
	ConditionConfig = model.ConditionConfig
	HTTPConfig      = model.HTTPConfig
	TemplateConfig  = model.TemplateConfig
	OutputConfig    = model.OutputConfig
)

// NodeStatus is the lifecycle state of one node within a run.
type NodeStatus = model.NodeStatus

const (
	NodePending           = model.NodePending
	NodeRunning           = model.NodeRunning
	NodeSucceeded         = model.NodeSucceeded
	NodeFailed            = model.NodeFailed
	NodeSkipped           = model.NodeSkipped
	NodeSkippedDownstream = model.NodeSkippedDownstream
)

// RunStatus is the overall state of a workflow run.
type RunStatus = model.RunStatus

const (
	RunRunning   = model.RunRunning
	RunSucceeded = model.RunSucceeded
	RunPartial   = model.RunPartial
	RunFailed    = model.RunFailed
)

// Run is the record of one workflow execution: per-node results in
// completion order plus the settled outcome.
type Run = runstore.Run

// NodeResult is one node's outcome within a run.
type NodeResult = runstore.NodeResult

// RunDoc is the serializable form of a run, as printed by the CLI and
// returned over MCP.
type RunDoc = runstore.Doc

// TokenUsage counts provider tokens consumed by an llm node.
type TokenUsage = model.TokenUsage

// Engine executes workflows. It is safe for concurrent use.
type Engine = engine.Engine

// EngineConfig assembles an Engine; zero fields fall back to defaults.
type EngineConfig = engine.Config

// Store is the persistence port for workflow lifecycle and run archival.
type Store = store.Store

// MemStore is the in-memory Store, for tests and embedding.
type MemStore = store.MemStore

// BadgerStore is the Badger-backed Store used by serve mode.
type BadgerStore = store.BadgerStore

// Capabilities bundles what a run executes against: the model provider,
// the HTTP client, and the tool registry.
type Capabilities = capability.Set

// ModelInvoker is the LLM provider port.
type ModelInvoker = capability.ModelInvoker

type (
	ModelRequest  = capability.ModelRequest
	ModelResponse = capability.ModelResponse
	ModelMessage  = capability.ModelMessage
)

// HTTPDoer is the HTTP client port used by http nodes.
type HTTPDoer = capability.HTTPDoer

// ToolRegistry is the tool port used by tool nodes.
type ToolRegistry = capability.ToolRegistry

// ToolFunc is one in-process tool implementation.
type ToolFunc = capability.ToolFunc

// BuiltinTools is an in-process ToolRegistry keyed by name.
type BuiltinTools = capability.BuiltinTools

// NodeRegistry maps node kinds to their executors.
type NodeRegistry = nodes.Registry

// ValidationResult collects every finding from validating a workflow.
type ValidationResult = validate.Result

// Issue is one validation finding.
type Issue = model.Issue

// MCPServer exposes published workflows as MCP tools.
type MCPServer = mcpserver.Server

// MCPConfig assembles an MCPServer.
type MCPConfig = mcpserver.Config

// Error types callers can match with errors.As.
type (
	ValidationError = model.ValidationError
	ExecutionError  = model.ExecutionError
	RunError        = model.RunError
	ResolutionError = model.ResolutionError
)

// Sentinel errors returned by stores and runs.
var (
	ErrWorkflowNotFound = model.ErrWorkflowNotFound
	ErrRunNotFound      = model.ErrRunNotFound
	ErrNotPublished     = model.ErrNotPublished
	ErrNoOutput         = model.ErrNoOutput
)

// New builds an Engine from the given configuration.
func New(cfg EngineConfig) *Engine {
	return engine.New(cfg)
}

// LoadFlow reads a workflow from a .hcl flow file, or from every .hcl
// file under a directory merged into one workflow.
func LoadFlow(ctx context.Context, path string) (*Workflow, error) {
	return hclflow.Load(ctx, path)
}

// Validate checks a workflow graph without running it.
func Validate(wf *Workflow) *ValidationResult {
	return validate.Workflow(wf)
}

// ParseExpr parses one expression, e.g. "node.intake.output.name".
func ParseExpr(src, filename string) (*Expr, error) {
	return model.ParseExpr(src, filename)
}

// ParseTemplate parses a string template, e.g. "Hi ${node.a.output.x}".
func ParseTemplate(src, filename string) (*Expr, error) {
	return model.ParseTemplate(src, filename)
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return store.NewMemStore()
}

// OpenBadger opens (or creates) a Badger-backed store under dir.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	return store.OpenBadger(dir, logger)
}

// NewBuiltinTools returns an empty tool registry to Register tools on.
func NewBuiltinTools() *BuiltinTools {
	return capability.NewBuiltinTools()
}

// DefaultRegistry returns the registry with every built-in node kind.
func DefaultRegistry() *NodeRegistry {
	return nodes.Default()
}

// NewMCPServer wraps a store and engine in an MCP tool surface.
func NewMCPServer(ctx context.Context, cfg MCPConfig) (*MCPServer, error) {
	return mcpserver.New(ctx, cfg)
}
