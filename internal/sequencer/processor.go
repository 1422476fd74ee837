package sequencer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/trigger"
)

// result is the outcome of one processing pass.
type result struct {
	cancelled bool
	cause     trigger.Cause
	detail    map[string]interface{}
}

// processor is created once per node per Runtime and owns the node's
// in-progress guard and end triggers.
type processor interface {
	node() *narrative.Node
	begin() bool
	end()
	inProgress() bool

	// prepare pre-initialises the node ahead of possible selection and
	// reports whether anything was acquired.
	prepare(ctx context.Context) bool
	unprepare(ctx context.Context)

	// process runs steps one to five of the lifecycle.
	process(ctx context.Context, s *Sequencer) result
	// finish runs once the output decision point has been handled.
	finish(ctx context.Context)
}

// body is the kind specific part of a processing pass.
type body interface {
	// pre acquires resources and reports whether run will signal content
	// completion of its own.
	pre(ctx context.Context, s *Sequencer) bool
	// run starts the body without blocking; contentDone is called once the
	// body's own content has finished. ctx is cancelled at teardown.
	run(ctx context.Context, s *Sequencer, contentDone func())
	// settle runs after triggers are disarmed, before teardown.
	settle(ctx context.Context, cancelled bool)
	// post joins everything run spawned and releases resources.
	post(ctx context.Context, cancelled bool)
}

// reporter is implemented by bodies that add fields to the node's
// completion event.
type reporter interface {
	report() map[string]interface{}
}

type base struct {
	rt       *Runtime
	n        *narrative.Node
	busy     atomic.Bool
	triggers *trigger.Set
	body     body
}

func newProcessor(rt *Runtime, n *narrative.Node) processor {
	set, err := trigger.NewSet(n.Triggers, rt.vars)
	if err != nil {
		rt.emit(events.LevelError, "system.error", "invalid end trigger", map[string]interface{}{
			"node_id": n.ID,
			"error":   err.Error(),
		})
		set = trigger.Of()
	}
	b := &base{rt: rt, n: n, triggers: set}
	switch n.Kind {
	case narrative.KindGroup:
		b.body = &groupBody{n: n, group: rt.points.Group(n.ID)}
	case narrative.KindGraph:
		b.body = &graphBody{n: n}
	case narrative.KindLayer:
		b.body = &layerBody{n: n, layer: rt.points.Layer(n.ID)}
	default:
		a := &atomicBody{rt: rt, n: n}
		b.body = a
		return &atomicProcessor{base: b, media: a}
	}
	return b
}

func (b *base) node() *narrative.Node { return b.n }
func (b *base) begin() bool { return b.busy.CompareAndSwap(false, true) }
func (b *base) end() { b.busy.Store(false) }
func (b *base) inProgress() bool { return b.busy.Load() }

func (b *base) prepare(context.Context) bool { return false }
func (b *base) unprepare(context.Context) {}
func (b *base) finish(context.Context) {}

func (b *base) process(ctx context.Context, s *Sequencer) result {
	signals := b.body.pre(ctx, s)

	relay := make(chan struct{})
	contentDone := sync.OnceFunc(func() { close(relay) })
	var implicit <-chan struct{}
	if signals {
		implicit = relay
	} else {
		// Nothing to play: end-of-content triggers fire at once.
		contentDone()
	}
	done := b.triggers.Arm(relay, implicit)

	bodyCtx, cancelBody := context.WithCancel(ctx)
	defer cancelBody()
	b.body.run(bodyCtx, s, contentDone)

	select {
	case <-done:
	case <-ctx.Done():
	}
	b.triggers.Disarm()

	cancelled := ctx.Err() != nil
	cause := b.triggers.Cause()
	if kind, ok := cause.Trigger(); ok && !cancelled {
		s.rt.emit(events.LevelDebug, "trigger.fired", "", s.nodeFields(b.n, map[string]interface{}{
			"trigger": string(kind),
		}))
	}

	b.body.settle(ctx, cancelled)
	cancelBody()
	b.body.post(context.WithoutCancel(ctx), cancelled)
	res := result{cancelled: cancelled, cause: cause}
	if r, ok := b.body.(reporter); ok {
		res.detail = r.report()
	}
	return res
}

// atomicProcessor adds successor preloading and the deferred unload.
type atomicProcessor struct {
	*base
	media *atomicBody
}

func (p *atomicProcessor) prepare(ctx context.Context) bool {
	if p.inProgress() {
		return false
	}
	return p.media.preload(ctx)
}

func (p *atomicProcessor) unprepare(ctx context.Context) {
	if p.inProgress() {
		return
	}
	p.media.drop(ctx)
}

func (p *atomicProcessor) finish(ctx context.Context) {
	p.media.finish(context.WithoutCancel(ctx))
}
