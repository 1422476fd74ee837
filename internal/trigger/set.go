package trigger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// Cause names what completed a processing pass.
type Cause string

const (
	CauseNone      Cause = ""
	CauseImmediate Cause = "immediate"
	CauseContent   Cause = "content"
)

const triggerPrefix = "trigger:"

// TriggerCause is the cause reported when an authored trigger fires.
func TriggerCause(kind narrative.TriggerKind) Cause {
	return Cause(triggerPrefix + string(kind))
}

// Trigger returns the trigger kind behind c, if an authored trigger fired.
func (c Cause) Trigger() (narrative.TriggerKind, bool) {
	kind, ok := strings.CutPrefix(string(c), triggerPrefix)
	return narrative.TriggerKind(kind), ok
}

// Set is the logical OR of a node's triggers plus any implicit completion
// sources supplied by the processor at arming time.
type Set struct {
	triggers []Trigger

	mu    sync.Mutex
	done  chan struct{}
	stop  chan struct{}
	cause Cause
}

// NewSet builds the triggers of a node.
func NewSet(specs []narrative.TriggerSpec, vars Subscriber) (*Set, error) {
	s := &Set{}
	for i, spec := range specs {
		t, err := New(spec, vars)
		if err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}
		s.triggers = append(s.triggers, t)
	}
	return s, nil
}

// Of wraps already built triggers.
func Of(triggers ...Trigger) *Set {
	return &Set{triggers: triggers}
}

// Arm starts every trigger and returns a channel closed once content is
// complete. content feeds end-of-content triggers; implicit sources complete
// the pass on their own. With no triggers and no implicit sources the
// returned channel is already closed.
func (s *Set) Arm(content <-chan struct{}, implicit ...<-chan struct{}) <-chan struct{} {
	s.mu.Lock()
	s.disarmLocked()
	done := make(chan struct{})
	stop := make(chan struct{})
	s.done, s.stop, s.cause = done, stop, CauseNone

	var sources []<-chan struct{}
	for _, c := range implicit {
		if c != nil {
			sources = append(sources, c)
		}
	}
	if len(s.triggers) == 0 && len(sources) == 0 {
		s.cause = CauseImmediate
		close(done)
		s.mu.Unlock()
		return done
	}
	s.mu.Unlock()

	for _, t := range s.triggers {
		kind := t.Kind()
		t.StartMonitoring(content, func() { s.complete(done, TriggerCause(kind)) })
	}
	for _, src := range sources {
		go func() {
			select {
			case <-src:
				s.complete(done, CauseContent)
			case <-stop:
			}
		}()
	}
	return done
}

func (s *Set) complete(done chan struct{}, cause Cause) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done || s.stop == nil || s.cause != CauseNone {
		return
	}
	s.cause = cause
	close(done)
}

// Disarm stops every trigger and releases implicit source watchers.
func (s *Set) Disarm() {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()
	for _, t := range s.triggers {
		t.StopMonitoring()
	}
}

func (s *Set) disarmLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Cause reports what completed the most recent arming.
func (s *Set) Cause() Cause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}
