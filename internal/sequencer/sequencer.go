package sequencer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
)

// Sequencer owns a queue of pending nodes and processes it depth first, one
// node at a time. Nodes it processes stay in progress until its chain ends,
// so a cycle is never walked twice by the same chain.
type Sequencer struct {
	rt     *Runtime
	runID  string
	depth  int
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	queue   []*narrative.Node
	held    []processor
	visited int
}

func newSequencer(parent context.Context, rt *Runtime, runID string, depth int) *Sequencer {
	ctx, cancel := context.WithCancel(parent)
	return &Sequencer{
		rt:     rt,
		runID:  runID,
		depth:  depth,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// child creates a Sequencer one level deeper whose cancellation follows ctx.
func (s *Sequencer) child(ctx context.Context) *Sequencer {
	return newSequencer(ctx, s.rt, s.runID, s.depth+1)
}

func (s *Sequencer) RunID() string { return s.runID }
func (s *Sequencer) Depth() int { return s.depth }

// Done is closed once the Sequencer and everything it spawned has finished.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Cancel requests cancellation of the current node and every descendant.
func (s *Sequencer) Cancel() { s.cancel() }

// Cancelled reports whether the Sequencer was cancelled.
func (s *Sequencer) Cancelled() bool { return s.ctx.Err() != nil }

// Visited returns how many nodes this Sequencer has processed.
func (s *Sequencer) Visited() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited
}

func (s *Sequencer) enqueue(n *narrative.Node) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()
}

func (s *Sequencer) next() (*narrative.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	n := s.queue[0]
	s.queue = s.queue[1:]
	return n, true
}

func (s *Sequencer) start(root *narrative.Node) {
	s.enqueue(root)
	go s.run()
}

// runSync processes root on the calling goroutine.
func (s *Sequencer) runSync(root *narrative.Node) {
	s.enqueue(root)
	s.run()
}

func (s *Sequencer) run() {
	defer close(s.done)
	defer s.cancel()
	defer s.release()
	defer s.drain()

	s.rt.emit(events.LevelDebug, "sequencer.started", "", s.fields(nil))
	for {
		n, ok := s.next()
		if !ok || s.ctx.Err() != nil {
			break
		}
		if succ := s.process(n); succ != nil {
			s.enqueue(succ)
		}
	}
	s.rt.emit(events.LevelDebug, "sequencer.stopped", "", s.fields(map[string]interface{}{
		"visited":   s.Visited(),
		"cancelled": s.Cancelled(),
	}))
}

// drain drops nodes left queued by a cancelled chain, unloading anything
// preloaded for them.
func (s *Sequencer) drain() {
	s.mu.Lock()
	left := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, n := range left {
		s.rt.processor(n).unprepare(context.WithoutCancel(s.ctx))
	}
}

// release clears the in-progress guard of every node this chain processed.
func (s *Sequencer) release() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.mu.Unlock()
	for _, p := range held {
		p.end()
	}
}

// process runs one node through the common lifecycle and returns the
// successor chosen by its output decision point, if any.
func (s *Sequencer) process(n *narrative.Node) *narrative.Node {
	proc := s.rt.processor(n)
	if !proc.begin() {
		s.rt.emit(events.LevelInfo, "node.skipped", "node already in progress", s.nodeFields(n, nil))
		return nil
	}
	s.mu.Lock()
	s.held = append(s.held, proc)
	s.visited++
	s.mu.Unlock()

	out := s.rt.points.Output(n.ID)
	prepared := s.prepareSuccessors(out.Candidates())

	ctx, span := s.rt.tracer.Start(s.ctx, "node."+string(n.Kind), trace.WithAttributes(
		attribute.String("node.id", n.ID),
		attribute.String("node.kind", string(n.Kind)),
		attribute.Int("sequencer.depth", s.depth),
		attribute.String("run.id", s.runID),
	))
	defer span.End()

	s.rt.emit(events.LevelInfo, "node.started", "", s.nodeFields(n, nil))
	res := proc.process(ctx, s)
	span.SetAttributes(attribute.String("node.cause", string(res.cause)))

	if res.cancelled || s.ctx.Err() != nil {
		s.releasePrepared(prepared, nil)
		proc.finish(ctx)
		s.complete(n, true)
		span.SetStatus(codes.Error, "cancelled")
		s.rt.emit(events.LevelInfo, "node.cancelled", "", s.nodeFields(n, res.detail))
		return nil
	}

	winner, ok := out.Select(s.rt.vars, s.rt.rand)
	s.complete(n, false)
	s.rt.emit(events.LevelInfo, "node.completed", "", s.nodeFields(n, res.detail, map[string]interface{}{
		"cause": string(res.cause),
	}))

	if !ok {
		s.releasePrepared(prepared, nil)
		proc.finish(ctx)
		if out.Inert() {
			s.rt.emit(events.LevelWarn, "decision.inert", "unknown output algorithm", s.nodeFields(n, map[string]interface{}{
				"algorithm": out.Algorithm(),
			}))
		} else if len(out.Candidates()) > 0 {
			s.rt.emit(events.LevelDebug, "decision.empty", "no valid output candidate", s.nodeFields(n, nil))
		}
		return nil
	}
	if s.ctx.Err() != nil {
		s.releasePrepared(prepared, nil)
		proc.finish(ctx)
		return nil
	}
	if s.rt.processor(winner).inProgress() {
		s.releasePrepared(prepared, nil)
		proc.finish(ctx)
		s.rt.emit(events.LevelInfo, "node.skipped", "successor already in progress", s.nodeFields(winner, map[string]interface{}{
			"from": n.ID,
		}))
		return nil
	}
	s.releasePrepared(prepared, winner)
	proc.finish(ctx)
	return winner
}

// prepareSuccessors pre-initialises candidates the node may output to.
func (s *Sequencer) prepareSuccessors(candidates []*narrative.Node) []processor {
	var prepared []processor
	for _, c := range candidates {
		p := s.rt.processor(c)
		if p.prepare(s.ctx) {
			prepared = append(prepared, p)
		}
	}
	return prepared
}

func (s *Sequencer) releasePrepared(prepared []processor, keep *narrative.Node) {
	for _, p := range prepared {
		if keep != nil && p.node().ID == keep.ID {
			continue
		}
		p.unprepare(context.WithoutCancel(s.ctx))
	}
}

func (s *Sequencer) complete(n *narrative.Node, cancelled bool) {
	s.rt.record.Append(context.WithoutCancel(s.ctx), record.Entry{
		RunID:     s.runID,
		NodeID:    n.ID,
		NodeName:  n.Name,
		Kind:      n.Kind,
		Depth:     s.depth,
		Cancelled: cancelled,
	})
}

func (s *Sequencer) fields(extra ...map[string]interface{}) map[string]interface{} {
	f := map[string]interface{}{
		"run_id": s.runID,
		"depth":  s.depth,
	}
	for _, m := range extra {
		for k, v := range m {
			f[k] = v
		}
	}
	return f
}

func (s *Sequencer) nodeFields(n *narrative.Node, extra ...map[string]interface{}) map[string]interface{} {
	f := s.fields(extra...)
	f["node_id"] = n.ID
	f["kind"] = string(n.Kind)
	return f
}
