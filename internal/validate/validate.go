// Package validate checks workflow graphs before execution: structural
// soundness, acyclicity, branch labels, and that every reference points at
// a declared output field of an upstream node. Validation runs on publish
// and again before every run; nothing executes until it passes.
package validate

import (
	"fmt"
	"strings"

	"github.com/vk/flowgridgo/internal/model"
)

// Result collects validation findings. Errors block publishing and
// execution; warnings are advisory and surface in check mode.
type Result struct {
	Errors   []model.Issue
	Warnings []model.Issue
}

func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Err returns a ValidationError carrying every blocking issue, or nil.
func (r *Result) Err(workflowID string) error {
	if r.OK() {
		return nil
	}
	return &model.ValidationError{WorkflowID: workflowID, Issues: r.Errors}
}

func (r *Result) errf(kind model.IssueKind, nodeID, path, format string, args ...any) {
	r.Errors = append(r.Errors, model.Issue{
		Kind: kind, NodeID: nodeID, Path: path, Detail: fmt.Sprintf(format, args...),
	})
}

func (r *Result) warnf(kind model.IssueKind, nodeID, format string, args ...any) {
	r.Warnings = append(r.Warnings, model.Issue{
		Kind: kind, NodeID: nodeID, Detail: fmt.Sprintf(format, args...),
	})
}

// Workflow validates the whole graph and reports every finding it can,
// rather than stopping at the first.
func Workflow(wf *model.Workflow) *Result {
	r := &Result{}

	nodes := checkNodes(r, wf)
	checkEdges(r, wf, nodes)
	checkCycles(r, wf, nodes)
	checkRefs(r, wf, nodes)
	checkReachability(r, wf, nodes)

	return r
}

func checkNodes(r *Result, wf *model.Workflow) map[string]*model.Node {
	nodes := make(map[string]*model.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.ID == "" {
			r.errf(model.IssueInvalidNode, "", "", "node has an empty id")
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			r.errf(model.IssueDuplicateNodeID, n.ID, "", "node id %q is declared more than once", n.ID)
			continue
		}
		nodes[n.ID] = n

		if !n.Kind.Valid() {
			r.errf(model.IssueInvalidNode, n.ID, "", "unknown node kind %q", n.Kind)
			continue
		}
		checkConfig(r, n)
	}
	return nodes
}

// checkConfig verifies the tagged variant holds: the config matching the
// node's kind is present and no other one is.
func checkConfig(r *Result, n *model.Node) {
	configs := map[model.Kind]bool{
		model.KindInput:     n.Input != nil,
		model.KindLLM:       n.LLM != nil,
		model.KindTool:      n.Tool != nil,
		model.KindCondition: n.Condition != nil,
		model.KindHTTP:      n.HTTP != nil,
		model.KindTemplate:  n.Template != nil,
		model.KindOutput:    n.Output != nil,
	}
	if !configs[n.Kind] {
		r.errf(model.IssueInvalidNode, n.ID, "", "missing %s configuration", n.Kind)
		return
	}
	for kind, present := range configs {
		if present && kind != n.Kind {
			r.errf(model.IssueInvalidNode, n.ID, "", "%s configuration present on a %s node", kind, n.Kind)
		}
	}

	switch n.Kind {
	case model.KindInput:
		seen := map[string]bool{}
		for _, f := range n.Input.Fields {
			if f.Name == "" {
				r.errf(model.IssueInvalidNode, n.ID, "", "input field with an empty name")
				continue
			}
			if seen[f.Name] {
				r.errf(model.IssueInvalidNode, n.ID, f.Name, "input field %q declared more than once", f.Name)
			}
			seen[f.Name] = true
		}
	case model.KindLLM:
		if n.LLM.Model == "" {
			r.errf(model.IssueInvalidNode, n.ID, "", "llm node declares no model")
		}
		if len(n.LLM.Messages) == 0 {
			r.errf(model.IssueInvalidNode, n.ID, "", "llm node declares no messages")
		}
	case model.KindTool:
		if n.Tool.Tool == "" {
			r.errf(model.IssueInvalidNode, n.ID, "", "tool node names no tool")
		}
	case model.KindCondition:
		hasExpr := n.Condition.Expression != nil
		hasCases := len(n.Condition.Cases) > 0
		if hasExpr == hasCases {
			r.errf(model.IssueInvalidNode, n.ID, "", "condition needs either an expression or cases, not both")
		}
		seen := map[string]bool{}
		for _, c := range n.Condition.Cases {
			switch {
			case c.Label == "":
				r.errf(model.IssueInvalidNode, n.ID, "", "condition case with an empty label")
			case c.Label == "default":
				r.errf(model.IssueInvalidNode, n.ID, "", "case label %q is reserved for the fallthrough branch", c.Label)
			case seen[c.Label]:
				r.errf(model.IssueInvalidNode, n.ID, c.Label, "case label %q declared more than once", c.Label)
			}
			seen[c.Label] = true
		}
	case model.KindHTTP:
		if n.HTTP.URL == nil {
			r.errf(model.IssueInvalidNode, n.ID, "", "http node declares no url")
		}
	case model.KindTemplate:
		if n.Template.Body == nil {
			r.errf(model.IssueInvalidNode, n.ID, "", "template node declares no body")
		}
	case model.KindOutput:
		if len(n.Output.Values) == 0 {
			r.errf(model.IssueInvalidNode, n.ID, "", "output node declares no values")
		}
	}
}

func checkEdges(r *Result, wf *model.Workflow, nodes map[string]*model.Node) {
	for _, e := range wf.Edges {
		from, fromOK := nodes[e.From]
		if !fromOK {
			r.errf(model.IssueDanglingReference, e.To, e.From, "edge source %q does not exist", e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			r.errf(model.IssueDanglingReference, e.From, e.To, "edge target %q does not exist", e.To)
		}
		if e.From == e.To && e.From != "" {
			r.errf(model.IssueCycleDetected, e.From, e.From, "cycle: %s -> %s", e.From, e.To)
		}
		if e.Branch == "" || !fromOK {
			continue
		}
		if from.Kind != model.KindCondition {
			r.errf(model.IssueInvalidBranchLabel, e.From, e.Branch, "branch label %q on an edge from a %s node", e.Branch, from.Kind)
		} else if from.Condition != nil && !from.Condition.HasLabel(e.Branch) {
			r.errf(model.IssueInvalidBranchLabel, e.From, e.Branch, "condition %q declares no branch %q (have: %s)", e.From, e.Branch, strings.Join(from.Condition.Labels(), ", "))
		}
	}
}

// checkCycles runs a DFS over the edge graph with a visiting set, the
// classic coloring walk, and reports the first cycle with its full path.
func checkCycles(r *Result, wf *model.Workflow, nodes map[string]*model.Node) {
	adj := adjacency(wf, nodes)

	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var stack []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visiting[id] = true
		stack = append(stack, id)
		for _, next := range adj[id] {
			if visiting[next] {
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				path := append(append([]string{}, stack[start:]...), next)
				r.errf(model.IssueCycleDetected, next, strings.Join(path, " -> "), "cycle detected involving %q", next)
				return true
			}
			if !visited[next] {
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		delete(visiting, id)
		visited[id] = true
		return false
	}

	for _, n := range wf.Nodes {
		if n.ID == "" || visited[n.ID] {
			continue
		}
		stack = stack[:0]
		if visit(n.ID) {
			return
		}
	}
}

// checkRefs verifies every expression reference addresses a declared
// output field of a strict upstream node.
func checkRefs(r *Result, wf *model.Workflow, nodes map[string]*model.Node) {
	ancestors := ancestorSets(wf, nodes)

	for _, n := range wf.Nodes {
		for _, ref := range n.Refs() {
			target, ok := nodes[ref.Node]
			if !ok {
				r.errf(model.IssueDanglingReference, n.ID, ref.String(), "references unknown node %q", ref.Node)
				continue
			}
			if ref.Node == n.ID {
				r.errf(model.IssueDanglingReference, n.ID, ref.String(), "node references itself")
				continue
			}
			if !ancestors[n.ID][ref.Node] {
				r.errf(model.IssueDanglingReference, n.ID, ref.String(), "references %q, which is not upstream of %q", ref.Node, n.ID)
				continue
			}
			if !model.TypeHasPath(target.OutputType(), ref.Path) {
				r.errf(model.IssueDanglingReference, n.ID, ref.String(), "%s node %q declares no output field %s", target.Kind, ref.Node, model.PathString(ref.Path))
			}
		}
	}
}

func checkReachability(r *Result, wf *model.Workflow, nodes map[string]*model.Node) {
	var roots []string
	hasOutput := false
	for _, n := range wf.Nodes {
		if n.Kind == model.KindInput {
			roots = append(roots, n.ID)
		}
		if n.Kind == model.KindOutput {
			hasOutput = true
		}
	}
	if !hasOutput {
		r.warnf(model.IssueNoOutputNodes, "", "workflow has no output node; every run will fail")
	}
	if len(roots) == 0 {
		r.warnf(model.IssueNoInputNodes, "", "workflow has no input node; reachability not checked")
		return
	}

	adj := adjacency(wf, nodes)
	reached := make(map[string]bool)
	queue := append([]string{}, roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] {
			continue
		}
		reached[id] = true
		queue = append(queue, adj[id]...)
	}

	for _, n := range wf.Nodes {
		if n.ID != "" && !reached[n.ID] {
			r.warnf(model.IssueUnreachableNode, n.ID, "not reachable from any input node")
		}
	}
}

// adjacency maps node id to its downstream neighbors, edges with missing
// endpoints excluded.
func adjacency(wf *model.Workflow, nodes map[string]*model.Node) map[string][]string {
	adj := make(map[string][]string)
	for _, e := range wf.Edges {
		if _, ok := nodes[e.From]; !ok {
			continue
		}
		if _, ok := nodes[e.To]; !ok {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

// ancestorSets computes, for every node, the set of nodes upstream of it.
func ancestorSets(wf *model.Workflow, nodes map[string]*model.Node) map[string]map[string]bool {
	incoming := make(map[string][]string)
	for _, e := range wf.Edges {
		if _, ok := nodes[e.From]; !ok {
			continue
		}
		if _, ok := nodes[e.To]; !ok {
			continue
		}
		incoming[e.To] = append(incoming[e.To], e.From)
	}

	sets := make(map[string]map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.ID == "" {
			continue
		}
		set := make(map[string]bool)
		var walk func(id string)
		walk = func(id string) {
			for _, up := range incoming[id] {
				if !set[up] {
					set[up] = true
					walk(up)
				}
			}
		}
		walk(n.ID)
		sets[n.ID] = set
	}
	return sets
}
