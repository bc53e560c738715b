// Package hclflow loads workflow definitions from HCL flow files. A flow
// is one workflow, described by a `workflow` block and `node "<kind>"
// "<name>"` blocks, possibly spread across several files in a directory.
// Explicit ordering comes from depends_on entries ("name" or the
// branch-labeled "name:label" form); references between nodes become
// implicit edges.
package hclflow

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/model"
)

// Load reads the workflow at path: a single .hcl file, or a directory
// whose .hcl files are merged in lexical order. The result is not yet
// validated; graph-level rules are the validator's job.
func Load(ctx context.Context, path string) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading flow files.", "path", path)

	files, err := resolveFlowPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl flow files found at %s", path)
	}

	parser := hclparse.NewParser()
	b := newBuilder()
	for _, name := range files {
		file, diags := parser.ParseHCLFile(name)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse flow file %s: %s", name, diags.Error())
		}
		if err := b.addFile(name, file); err != nil {
			return nil, err
		}
	}

	wf := b.finish(ctx)
	logger.Info("Loaded workflow.", "path", path, "files", len(files), "nodes", len(wf.Nodes), "edges", len(wf.Edges))
	return wf, nil
}

type builder struct {
	wf     *model.Workflow
	wfFile string
	nodes  []*model.Node
	edges  []model.Edge

	edgeSeen map[model.Edge]bool
	// linked tracks node pairs already ordered by any edge, so a
	// reference never duplicates an explicit depends_on entry.
	linked map[[2]string]bool
}

func newBuilder() *builder {
	return &builder{
		wf:       &model.Workflow{},
		edgeSeen: map[model.Edge]bool{},
		linked:   map[[2]string]bool{},
	}
}

func (b *builder) addFile(name string, file *hcl.File) error {
	var cfg flowFile
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return fmt.Errorf("decode flow file %s: %s", name, diags.Error())
	}

	if cfg.Workflow != nil {
		if b.wfFile != "" {
			return fmt.Errorf("workflow block declared in both %s and %s", b.wfFile, name)
		}
		b.wfFile = name
		if err := b.applyWorkflow(cfg.Workflow); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for _, nb := range cfg.Nodes {
		n, err := decodeNode(nb, file)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		b.nodes = append(b.nodes, n)

		for _, dep := range nb.DependsOn {
			from, branch, err := parseDep(dep)
			if err != nil {
				return fmt.Errorf("%s: %s: %w", name, nb.addr(), err)
			}
			b.addEdge(model.Edge{From: from, To: n.ID, Branch: branch})
		}
	}
	return nil
}

func (b *builder) applyWorkflow(wb *workflowBlock) error {
	b.wf.ID = wb.ID
	b.wf.Name = wb.Name
	b.wf.Owner = wb.Owner
	if wb.Timeout != "" {
		d, err := time.ParseDuration(wb.Timeout)
		if err != nil {
			return fmt.Errorf("workflow: invalid timeout %q", wb.Timeout)
		}
		b.wf.Timeout = d
	}
	return nil
}

func (b *builder) addEdge(e model.Edge) {
	if b.edgeSeen[e] {
		return
	}
	b.edgeSeen[e] = true
	b.edges = append(b.edges, e)
	b.linked[[2]string{e.From, e.To}] = true
}

// finish assembles the workflow and links implicit dependencies: every
// reference to another node that no explicit edge already covers becomes
// a plain edge. References to unknown nodes and self-references are left
// for the validator to report.
func (b *builder) finish(ctx context.Context) *model.Workflow {
	logger := ctxlog.FromContext(ctx)

	byID := make(map[string]bool, len(b.nodes))
	for _, n := range b.nodes {
		byID[n.ID] = true
	}
	for _, n := range b.nodes {
		for _, ref := range n.Refs() {
			if ref.Node == n.ID || !byID[ref.Node] {
				continue
			}
			pair := [2]string{ref.Node, n.ID}
			if b.linked[pair] {
				continue
			}
			b.linked[pair] = true
			logger.Debug("Linked implicit dependency.", "from", ref.Node, "to", n.ID)
			b.edges = append(b.edges, model.Edge{From: ref.Node, To: n.ID})
		}
	}

	b.wf.Nodes = b.nodes
	b.wf.Edges = b.edges
	return b.wf
}

// depAddrRegex admits depends_on addresses of the form "name" or
// "name:branch".
var depAddrRegex = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_-]*)(?::([A-Za-z0-9_-]+))?$`)

func parseDep(addr string) (node, branch string, err error) {
	m := depAddrRegex.FindStringSubmatch(addr)
	if m == nil {
		return "", "", fmt.Errorf("invalid depends_on address %q", addr)
	}
	return m[1], m[2], nil
}
