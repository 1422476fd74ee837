// Package sequencer walks a narrative graph. A Runtime owns the traversal
// context shared by a tree of Sequencers; each Sequencer processes its own
// queue one node at a time, and group, graph and layer nodes fan out into
// child Sequencers that run concurrently.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AaronLay10/NarrativeEngine/internal/decision"
	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/media"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

const tracerName = "github.com/AaronLay10/NarrativeEngine/internal/sequencer"

var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrTraversalActive = errors.New("traversal already active")
	ErrNoTraversal     = errors.New("no traversal")
)

// Options configures a Runtime. Only Graph is required.
type Options struct {
	Graph  *narrative.Graph
	Vars   variables.Store
	Record *record.Record
	Events *events.Bus
	Media  media.Provider
	Rand   *decision.Rand
	Tracer trace.Tracer
}

// Runtime is the traversal context passed to every Sequencer and processor.
type Runtime struct {
	graph  *narrative.Graph
	points *decision.Points
	vars   variables.Store
	record *record.Record
	events *events.Bus
	media  media.Provider
	rand   *decision.Rand
	tracer trace.Tracer

	unsubscribe func()

	procMu sync.Mutex
	procs  map[string]processor

	mu  sync.Mutex
	cur *traversal
}

type traversal struct {
	id   string
	root *Sequencer
	done chan struct{}
}

// New builds a Runtime and compiles the graph's decision points.
func New(opts Options) (*Runtime, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("sequencer: graph is required")
	}
	rt := &Runtime{
		graph:  opts.Graph,
		points: decision.Compile(opts.Graph),
		vars:   opts.Vars,
		record: opts.Record,
		events: opts.Events,
		media:  opts.Media,
		rand:   opts.Rand,
		tracer: opts.Tracer,
		procs:  make(map[string]processor),
	}
	if rt.vars == nil {
		globals, err := opts.Graph.NewGlobals()
		if err != nil {
			return nil, fmt.Errorf("sequencer: globals: %w", err)
		}
		rt.vars = globals
	}
	if rt.record == nil {
		rt.record = record.New()
	}
	if rt.media == nil {
		rt.media = media.NewRegistry()
	}
	if rt.rand == nil {
		seed, err := decision.NewSeed()
		if err != nil {
			return nil, err
		}
		rt.rand = decision.NewRand(seed)
	}
	if rt.tracer == nil {
		rt.tracer = otel.Tracer(tracerName)
	}
	rt.record.OnSinkError(func(err error) {
		rt.emit(events.LevelError, "system.error", "sequence record sink failed", map[string]interface{}{
			"error": err.Error(),
		})
	})
	rt.unsubscribe = rt.vars.Subscribe(func(c variables.Change) {
		rt.emit(events.LevelDebug, "variable.changed", "", map[string]interface{}{
			"name": c.Name,
			"old":  c.Old.String(),
			"new":  c.New.String(),
		})
	})
	return rt, nil
}

func (rt *Runtime) Graph() *narrative.Graph { return rt.graph }
func (rt *Runtime) Vars() variables.Store { return rt.vars }
func (rt *Runtime) Record() *record.Record { return rt.record }
func (rt *Runtime) Events() *events.Bus { return rt.events }

// Start begins a traversal from root and returns the root Sequencer. The
// traversal stops when ctx is cancelled or Stop is called.
func (rt *Runtime) Start(ctx context.Context, root string) (*Sequencer, error) {
	tr, err := rt.start(ctx, root)
	if err != nil {
		return nil, err
	}
	return tr.root, nil
}

func (rt *Runtime) start(ctx context.Context, root string) (*traversal, error) {
	n, ok := rt.graph.Node(root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, root)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cur != nil {
		return nil, ErrTraversalActive
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	tr := &traversal{id: id.String(), done: make(chan struct{})}
	tr.root = newSequencer(ctx, rt, tr.id, 0)
	rt.cur = tr

	rt.emit(events.LevelInfo, "traversal.started", "", map[string]interface{}{
		"run_id": tr.id,
		"root":   root,
	})
	tr.root.start(n)

	go func() {
		<-tr.root.Done()
		name := "traversal.completed"
		if tr.root.Cancelled() {
			name = "traversal.cancelled"
		}
		rt.emit(events.LevelInfo, name, "", map[string]interface{}{
			"run_id":  tr.id,
			"entries": len(rt.record.Run(tr.id)),
		})
		rt.mu.Lock()
		if rt.cur == tr {
			rt.cur = nil
		}
		rt.mu.Unlock()
		close(tr.done)
	}()
	return tr, nil
}

// Stop cancels the active traversal and blocks until every Sequencer in the
// tree has unwound.
func (rt *Runtime) Stop() error {
	rt.mu.Lock()
	tr := rt.cur
	rt.mu.Unlock()
	if tr == nil {
		return ErrNoTraversal
	}
	tr.root.Cancel()
	<-tr.done
	return nil
}

// Wait blocks until the active traversal finishes or ctx is done.
func (rt *Runtime) Wait(ctx context.Context) error {
	rt.mu.Lock()
	tr := rt.cur
	rt.mu.Unlock()
	if tr == nil {
		return nil
	}
	select {
	case <-tr.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether a traversal is running.
func (rt *Runtime) Active() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cur != nil
}

// RunID returns the id of the active traversal, or "".
func (rt *Runtime) RunID() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.cur == nil {
		return ""
	}
	return rt.cur.id
}

// Outcome is what one played traversal left behind.
type Outcome struct {
	RunID   string
	Entries []record.Entry
}

// Play runs a traversal from root to completion and returns its outcome. If
// ctx ends first the traversal is cancelled, and ctx's error is returned with
// the entries recorded so far.
func (rt *Runtime) Play(ctx context.Context, root string) (Outcome, error) {
	tr, err := rt.start(ctx, root)
	if err != nil {
		return Outcome{}, err
	}
	<-tr.done
	return Outcome{RunID: tr.id, Entries: rt.record.Run(tr.id)}, ctx.Err()
}

// Close stops any traversal and detaches from the variable store.
func (rt *Runtime) Close() {
	_ = rt.Stop()
	if rt.unsubscribe != nil {
		rt.unsubscribe()
	}
}

func (rt *Runtime) processor(n *narrative.Node) processor {
	rt.procMu.Lock()
	defer rt.procMu.Unlock()
	p, ok := rt.procs[n.ID]
	if !ok {
		p = newProcessor(rt, n)
		rt.procs[n.ID] = p
	}
	return p
}

// InProgress reports whether a node is held by a running Sequencer.
func (rt *Runtime) InProgress(id string) bool {
	rt.procMu.Lock()
	p, ok := rt.procs[id]
	rt.procMu.Unlock()
	return ok && p.inProgress()
}

func (rt *Runtime) emit(level, name, msg string, fields map[string]interface{}) {
	rt.events.Emit(level, name, msg, fields)
}
