package sequencer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/NarrativeEngine/internal/decision"
	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// groupBody runs the repeated selection loop. Winners are walked one at a
// time, each by its own child Sequencer.
type groupBody struct {
	n     *narrative.Node
	group *decision.Group
	eg    *errgroup.Group

	result decision.GroupResult
}

func (g *groupBody) pre(_ context.Context, s *Sequencer) bool {
	if g.group.Inert() {
		sel, term := g.group.Algorithms()
		s.rt.emit(events.LevelWarn, "decision.inert", "unknown group algorithm", s.nodeFields(g.n, map[string]interface{}{
			"selection":   sel,
			"termination": term,
		}))
	}
	return true
}

func (g *groupBody) run(ctx context.Context, s *Sequencer, contentDone func()) {
	g.result = decision.GroupResult{}
	g.eg = &errgroup.Group{}
	g.eg.Go(func() error {
		defer contentDone()
		g.result = g.group.Run(ctx, s.rt.vars, s.rt.rand, func(ctx context.Context, winner *narrative.Node) {
			s.child(ctx).runSync(winner)
		}, func(st decision.GroupState) {
			s.rt.emit(events.LevelDebug, "group.iteration", "", s.nodeFields(g.n, map[string]interface{}{
				"iteration": st.Iteration,
				"winners":   st.Winners,
				"total":     st.Total,
			}))
		})
		return nil
	})
}

func (g *groupBody) settle(context.Context, bool) {}

func (g *groupBody) post(context.Context, bool) {
	if g.eg != nil {
		_ = g.eg.Wait()
		g.eg = nil
	}
}

// report is read after post, once the loop has been joined.
func (g *groupBody) report() map[string]interface{} {
	return map[string]interface{}{
		"iterations": g.result.Iterations,
		"winners":    g.result.Winners,
		"cancelled":  g.result.Cancelled,
	}
}

// graphBody walks a nested root with exactly one child Sequencer.
type graphBody struct {
	n  *narrative.Node
	eg *errgroup.Group

	root *narrative.Node
}

func (g *graphBody) pre(_ context.Context, s *Sequencer) bool {
	root, ok := s.rt.graph.Node(g.n.GraphRoot)
	if !ok || root.ID == g.n.ID {
		s.rt.emit(events.LevelWarn, "node.skipped", "graph root not found", s.nodeFields(g.n, map[string]interface{}{
			"root": g.n.GraphRoot,
		}))
		g.root = nil
		return false
	}
	g.root = root
	return true
}

func (g *graphBody) run(ctx context.Context, s *Sequencer, contentDone func()) {
	if g.root == nil {
		return
	}
	root := g.root
	g.eg = &errgroup.Group{}
	g.eg.Go(func() error {
		defer contentDone()
		s.child(ctx).runSync(root)
		return nil
	})
}

func (g *graphBody) settle(context.Context, bool) {}

func (g *graphBody) post(context.Context, bool) {
	if g.eg != nil {
		_ = g.eg.Wait()
		g.eg = nil
	}
}

// layerBody launches every valid candidate in parallel. Only the primary
// gates content completion; secondaries are joined at teardown.
type layerBody struct {
	n     *narrative.Node
	layer *decision.Layer
	eg    *errgroup.Group

	primary     *narrative.Node
	secondaries []*narrative.Node
}

func (l *layerBody) pre(_ context.Context, s *Sequencer) bool {
	l.primary, l.secondaries = l.layer.Split(l.layer.Select(s.rt.vars))
	launched := make([]string, 0, len(l.secondaries)+1)
	if l.primary != nil {
		launched = append(launched, l.primary.ID)
	}
	for _, n := range l.secondaries {
		launched = append(launched, n.ID)
	}
	s.rt.emit(events.LevelDebug, "layer.launched", "", s.nodeFields(l.n, map[string]interface{}{
		"primary":     l.layer.Primary(),
		"has_primary": l.primary != nil,
		"launched":    launched,
	}))
	return l.primary != nil
}

func (l *layerBody) run(ctx context.Context, s *Sequencer, contentDone func()) {
	l.eg = &errgroup.Group{}
	for _, n := range l.secondaries {
		l.eg.Go(func() error {
			s.child(ctx).runSync(n)
			return nil
		})
	}
	if l.primary != nil {
		primary := l.primary
		l.eg.Go(func() error {
			defer contentDone()
			s.child(ctx).runSync(primary)
			return nil
		})
	}
}

func (l *layerBody) settle(context.Context, bool) {}

func (l *layerBody) post(context.Context, bool) {
	if l.eg != nil {
		_ = l.eg.Wait()
		l.eg = nil
	}
	l.primary, l.secondaries = nil, nil
}
