// Package decision implements decision points: constraint filtering of
// authored candidates followed by a named selection algorithm.
//
// Algorithm names are resolved once, when a decision point is built. Names
// that do not resolve bind to inert algorithms that never produce a winner.
package decision

import (
	"context"
	"fmt"

	"github.com/AaronLay10/NarrativeEngine/internal/constraint"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// Filter returns the candidates that pass every decision point constraint and
// their own self-constraints, in authored order. It never mutates candidates.
func Filter(candidates []*narrative.Node, cs []constraint.Constraint, scope variables.Reader) []*narrative.Node {
	out := make([]*narrative.Node, 0, len(candidates))
	for _, c := range candidates {
		local := c.LocalVariables()
		if !constraint.All(cs, scope, local) {
			continue
		}
		if !constraint.Satisfied(c.Constraints, c.ConstraintMode, scope, local) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func resolve(g *narrative.Graph, ids []string) []*narrative.Node {
	out := make([]*narrative.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// Output is a node's single-selection output decision point.
type Output struct {
	candidates  []*narrative.Node
	constraints []constraint.Constraint
	algorithm   string
	pick        SingleAlgorithm
	resolved    bool
}

// NewOutput builds the output decision point of n.
func NewOutput(g *narrative.Graph, n *narrative.Node) *Output {
	pick, ok := OutputAlgorithm(n.Output.Algorithm)
	return &Output{
		candidates:  resolve(g, n.Output.Candidates),
		constraints: n.Output.Constraints,
		algorithm:   n.Output.Algorithm,
		pick:        pick,
		resolved:    ok,
	}
}

// Candidates returns the authored candidates.
func (o *Output) Candidates() []*narrative.Node {
	return append([]*narrative.Node(nil), o.candidates...)
}

// Algorithm returns the configured algorithm name.
func (o *Output) Algorithm() string { return o.algorithm }

// Inert reports whether the algorithm name failed to resolve.
func (o *Output) Inert() bool { return !o.resolved }

// Select filters then picks. An empty filtered list yields no winner.
func (o *Output) Select(scope variables.Reader, r *Rand) (*narrative.Node, bool) {
	return o.pick(r, Filter(o.candidates, o.constraints, scope))
}

// Layer is the single-shot multi-selection decision point of a layer node.
type Layer struct {
	candidates  []*narrative.Node
	constraints []constraint.Constraint
	primary     string
}

// NewLayer builds the layer decision point of n.
func NewLayer(g *narrative.Graph, n *narrative.Node) *Layer {
	return &Layer{
		candidates:  resolve(g, n.Layer.Candidates),
		constraints: n.Layer.Constraints,
		primary:     n.Layer.Primary,
	}
}

// Primary returns the designated primary candidate id.
func (l *Layer) Primary() string { return l.primary }

// Select returns every valid candidate.
func (l *Layer) Select(scope variables.Reader) []*narrative.Node {
	return Filter(l.candidates, l.constraints, scope)
}

// Split separates the primary from the secondaries of a selection.
func (l *Layer) Split(selected []*narrative.Node) (primary *narrative.Node, secondaries []*narrative.Node) {
	for _, n := range selected {
		if primary == nil && n.ID == l.primary {
			primary = n
			continue
		}
		secondaries = append(secondaries, n)
	}
	return primary, secondaries
}

// GroupState is passed to termination algorithms after each iteration.
type GroupState struct {
	Iteration int
	Winners   int
	Total     int
}

// GroupResult summarises a finished group loop.
type GroupResult struct {
	Iterations int
	Winners    int
	Cancelled  bool
}

// Group is the repeated multi-selection decision point of a group node.
type Group struct {
	candidates      []*narrative.Node
	constraints     []constraint.Constraint
	selectionName   string
	terminationName string
	selection       MultiAlgorithm
	termination     TerminationAlgorithm
	resolved        bool
}

// NewGroup builds the group decision point of n.
func NewGroup(g *narrative.Graph, n *narrative.Node) *Group {
	sel, okSel := GroupSelection(n.Group.Selection)
	term, okTerm := GroupTermination(n.Group.Termination)
	return &Group{
		candidates:      resolve(g, n.Group.Candidates),
		constraints:     n.Group.Constraints,
		selectionName:   n.Group.Selection,
		terminationName: n.Group.Termination,
		selection:       sel,
		termination:     term,
		resolved:        okSel && okTerm,
	}
}

// Inert reports whether either algorithm name failed to resolve.
func (g *Group) Inert() bool { return !g.resolved }

// Algorithms returns the configured selection and termination names.
func (g *Group) Algorithms() (selection, termination string) {
	return g.selectionName, g.terminationName
}

// Run loops: filter against live variables, emit winners, then check
// termination. Each winner is passed to onWinner, which runs to completion
// before the next winner or check. An iteration with no winners ends the loop
// regardless of the termination algorithm. onIteration, if set, observes every
// finished iteration.
func (g *Group) Run(ctx context.Context, scope variables.Reader, r *Rand, onWinner func(context.Context, *narrative.Node), onIteration func(GroupState)) GroupResult {
	var res GroupResult
	for {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res
		}
		res.Iterations++

		winners := 0
		filtered := Filter(g.candidates, g.constraints, scope)
		g.selection(r, filtered, func(n *narrative.Node) {
			if ctx.Err() != nil {
				return
			}
			winners++
			onWinner(ctx, n)
		})
		res.Winners += winners
		state := GroupState{Iteration: res.Iterations, Winners: winners, Total: res.Winners}
		if onIteration != nil {
			onIteration(state)
		}

		if ctx.Err() != nil {
			res.Cancelled = true
			return res
		}
		if winners == 0 {
			return res
		}
		if g.termination(state) {
			return res
		}
	}
}

// Points holds the compiled decision points of a graph.
type Points struct {
	outputs map[string]*Output
	groups  map[string]*Group
	layers  map[string]*Layer
}

// Compile builds every decision point of g once.
func Compile(g *narrative.Graph) *Points {
	p := &Points{
		outputs: make(map[string]*Output, g.Len()),
		groups:  make(map[string]*Group),
		layers:  make(map[string]*Layer),
	}
	for _, n := range g.Nodes() {
		p.outputs[n.ID] = NewOutput(g, n)
		switch n.Kind {
		case narrative.KindGroup:
			p.groups[n.ID] = NewGroup(g, n)
		case narrative.KindLayer:
			p.layers[n.ID] = NewLayer(g, n)
		}
	}
	return p
}

func (p *Points) Output(id string) *Output { return p.outputs[id] }
func (p *Points) Group(id string) *Group { return p.groups[id] }
func (p *Points) Layer(id string) *Layer { return p.layers[id] }

// Validate reports algorithm names that resolve to inert algorithms.
func Validate(g *narrative.Graph) []narrative.Issue {
	var issues []narrative.Issue
	warn := func(id, format string, args ...any) {
		issues = append(issues, narrative.Issue{
			Severity: narrative.SeverityWarning,
			NodeID:   id,
			Message:  fmt.Sprintf(format, args...),
		})
	}
	for _, n := range g.Nodes() {
		if len(n.Output.Candidates) > 0 {
			if _, ok := OutputAlgorithm(n.Output.Algorithm); !ok {
				warn(n.ID, "unknown output algorithm %q; output is inert", n.Output.Algorithm)
			}
		}
		if n.Kind == narrative.KindGroup {
			if _, ok := GroupSelection(n.Group.Selection); !ok {
				warn(n.ID, "unknown group selection %q; group is inert", n.Group.Selection)
			}
			if _, ok := GroupTermination(n.Group.Termination); !ok {
				warn(n.ID, "unknown group termination %q; group is inert", n.Group.Termination)
			}
		}
	}
	return issues
}
