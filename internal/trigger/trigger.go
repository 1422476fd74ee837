// Package trigger implements processing end triggers: per-node state machines
// deciding when a processing pass's content is finished.
package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

// State is a trigger's monitoring state.
type State int32

const (
	Idle State = iota
	Armed
	Triggered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Trigger is a single end trigger.
//
// StartMonitoring moves Idle or Triggered to Armed and begins the kind-specific
// wait; fire is called at most once per arming. content is the node's own
// completion signal and is only observed by end-of-content triggers.
// StopMonitoring cancels the pending wait and is safe from any state.
// ForceTrigger sets Triggered immediately and stops monitoring.
type Trigger interface {
	Kind() narrative.TriggerKind
	State() State
	StartMonitoring(content <-chan struct{}, fire func())
	StopMonitoring()
	ForceTrigger()
}

// Subscriber is the change-notification part of a variable store.
type Subscriber interface {
	Subscribe(fn func(variables.Change)) (unsubscribe func())
}

// New builds a trigger from its authored spec.
func New(spec narrative.TriggerSpec, vars Subscriber) (Trigger, error) {
	switch spec.Kind {
	case narrative.TriggerEndOfContent:
		return NewEndOfContent(), nil
	case narrative.TriggerTimed:
		return NewTimed(spec.Duration), nil
	case narrative.TriggerVariable:
		if vars == nil {
			return nil, fmt.Errorf("variable trigger on %q: no variable store", spec.Variable)
		}
		if spec.MatchValue {
			return NewVariableValue(vars, spec.Variable, spec.Value), nil
		}
		return NewVariable(vars, spec.Variable), nil
	default:
		return nil, fmt.Errorf("unknown trigger kind %q", spec.Kind)
	}
}

// machine carries the state shared by every trigger kind. Each arming gets a
// new generation so late callbacks from a previous wait are ignored.
type machine struct {
	mu     sync.Mutex
	state  State
	gen    uint64
	onFire func()
	cancel func()
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) arm(fire func()) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.gen++
	m.state = Armed
	m.onFire = fire
	return m.gen
}

// watch installs the cancel func of generation gen's wait.
func (m *machine) watch(gen uint64, cancel func()) {
	m.mu.Lock()
	if gen != m.gen || m.state != Armed {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()
}

func (m *machine) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Armed {
		m.mu.Unlock()
		return
	}
	m.state = Triggered
	fn := m.onFire
	m.onFire = nil
	m.stopLocked()
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *machine) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.stopLocked()
	m.onFire = nil
	if m.state == Armed {
		m.state = Idle
	}
}

func (m *machine) ForceTrigger() {
	m.mu.Lock()
	wasArmed := m.state == Armed
	fn := m.onFire
	m.gen++
	m.state = Triggered
	m.onFire = nil
	m.stopLocked()
	m.mu.Unlock()
	if wasArmed && fn != nil {
		fn()
	}
}

func (m *machine) stopLocked() {
	if m.cancel != nil {
		c := m.cancel
		m.cancel = nil
		c()
	}
}

// EndOfContent fires when the node's content signal closes.
type EndOfContent struct {
	machine
}

func NewEndOfContent() *EndOfContent { return &EndOfContent{} }

func (t *EndOfContent) Kind() narrative.TriggerKind { return narrative.TriggerEndOfContent }

func (t *EndOfContent) StartMonitoring(content <-chan struct{}, fire func()) {
	gen := t.arm(fire)
	if content == nil {
		return
	}
	stop := make(chan struct{})
	t.watch(gen, sync.OnceFunc(func() { close(stop) }))
	go func() {
		select {
		case <-content:
			t.fire(gen)
		case <-stop:
		}
	}()
}

// Timed fires after a fixed duration.
type Timed struct {
	machine
	d time.Duration
}

func NewTimed(d time.Duration) *Timed { return &Timed{d: d} }

func (t *Timed) Kind() narrative.TriggerKind { return narrative.TriggerTimed }

func (t *Timed) StartMonitoring(_ <-chan struct{}, fire func()) {
	gen := t.arm(fire)
	timer := time.AfterFunc(t.d, func() { t.fire(gen) })
	t.watch(gen, func() { timer.Stop() })
}

// Variable fires when a named variable is written, optionally only when the
// written value equals an expected literal.
type Variable struct {
	machine
	vars  Subscriber
	name  string
	value string
	match bool
}

func NewVariable(vars Subscriber, name string) *Variable {
	return &Variable{vars: vars, name: name}
}

func NewVariableValue(vars Subscriber, name, value string) *Variable {
	return &Variable{vars: vars, name: name, value: value, match: true}
}

func (t *Variable) Kind() narrative.TriggerKind { return narrative.TriggerVariable }

func (t *Variable) StartMonitoring(_ <-chan struct{}, fire func()) {
	gen := t.arm(fire)
	unsubscribe := t.vars.Subscribe(func(c variables.Change) {
		if c.Name != t.name || !t.matches(c.New) {
			return
		}
		t.fire(gen)
	})
	t.watch(gen, unsubscribe)
}

func (t *Variable) matches(v variables.Value) bool {
	if !t.match {
		return true
	}
	want, err := variables.Parse(v.Kind, t.value)
	if err != nil {
		return false
	}
	return v.Equal(want)
}
