package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

const wait = time.Second

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestTimed_FiresAndStaysTriggered(t *testing.T) {
	tr := NewTimed(0)
	assert.Equal(t, Idle, tr.State())

	fired := make(chan struct{})
	tr.StartMonitoring(nil, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(wait):
		t.Fatal("timed trigger did not fire")
	}
	assert.Equal(t, Triggered, tr.State())

	tr.StopMonitoring()
	assert.Equal(t, Triggered, tr.State(), "triggered survives stop until re-armed")

	tr2 := NewTimed(time.Hour)
	tr2.StartMonitoring(nil, func() {})
	assert.Equal(t, Armed, tr2.State())
	tr2.StopMonitoring()
	assert.Equal(t, Idle, tr2.State())
}

func TestTimed_StopPreventsFire(t *testing.T) {
	tr := NewTimed(20 * time.Millisecond)
	fired := make(chan struct{}, 1)
	tr.StartMonitoring(nil, func() { fired <- struct{}{} })
	tr.StopMonitoring()

	select {
	case <-fired:
		t.Fatal("stopped trigger fired")
	case <-time.After(60 * time.Millisecond):
	}
	assert.Equal(t, Idle, tr.State())
}

func TestTimed_RearmIgnoresStaleTimer(t *testing.T) {
	tr := NewTimed(15 * time.Millisecond)
	var first, second atomic.Int32
	tr.StartMonitoring(nil, func() { first.Add(1) })
	tr.StartMonitoring(nil, func() { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() == 1 }, wait, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestEndOfContent(t *testing.T) {
	tr := NewEndOfContent()
	content := make(chan struct{})
	fired := make(chan struct{})
	tr.StartMonitoring(content, func() { close(fired) })
	assert.Equal(t, Armed, tr.State())

	close(content)
	select {
	case <-fired:
	case <-time.After(wait):
		t.Fatal("end of content did not fire")
	}
	assert.Equal(t, Triggered, tr.State())
}

func TestEndOfContent_NilContentNeverFires(t *testing.T) {
	tr := NewEndOfContent()
	tr.StartMonitoring(nil, func() { t.Error("fired without content") })
	assert.Equal(t, Armed, tr.State())
	tr.StopMonitoring()
}

func TestForceTrigger(t *testing.T) {
	tr := NewTimed(time.Hour)
	calls := 0
	tr.StartMonitoring(nil, func() { calls++ })
	tr.ForceTrigger()
	tr.ForceTrigger()
	assert.Equal(t, Triggered, tr.State())
	assert.Equal(t, 1, calls)

	idle := NewEndOfContent()
	idle.ForceTrigger()
	assert.Equal(t, Triggered, idle.State())
}

func TestVariable_AnyWriteAndValueMatch(t *testing.T) {
	store := variables.NewMemoryStore()
	require.NoError(t, store.Define("door", variables.KindString, "closed"))
	require.NoError(t, store.Define("noise", variables.KindInt, "0"))

	onAny := NewVariable(store, "noise")
	anyFired := 0
	onAny.StartMonitoring(nil, func() { anyFired++ })

	match := NewVariableValue(store, "door", "open")
	matchFired := 0
	match.StartMonitoring(nil, func() { matchFired++ })
	assert.Equal(t, 2, store.SubscriberCount())

	require.NoError(t, store.Set("door", "ajar"))
	assert.Zero(t, matchFired)
	assert.Zero(t, anyFired)

	require.NoError(t, store.Set("door", "open"))
	require.NoError(t, store.Set("noise", "4"))
	assert.Equal(t, 1, matchFired)
	assert.Equal(t, 1, anyFired)
	assert.Equal(t, 0, store.SubscriberCount(), "fired triggers unsubscribe")

	require.NoError(t, store.Set("noise", "5"))
	assert.Equal(t, 1, anyFired)
}

func TestNew_Kinds(t *testing.T) {
	store := variables.NewMemoryStore()
	for _, spec := range []narrative.TriggerSpec{
		{Kind: narrative.TriggerEndOfContent},
		{Kind: narrative.TriggerTimed, Duration: time.Second},
		{Kind: narrative.TriggerVariable, Variable: "x"},
	} {
		tr, err := New(spec, store)
		require.NoError(t, err)
		assert.Equal(t, spec.Kind, tr.Kind())
	}

	_, err := New(narrative.TriggerSpec{Kind: "clock"}, store)
	assert.Error(t, err)
	_, err = New(narrative.TriggerSpec{Kind: narrative.TriggerVariable}, nil)
	assert.Error(t, err)
}

func TestSet_EmptyIsImmediate(t *testing.T) {
	s := Of()
	done := s.Arm(nil)
	assert.True(t, closed(done))
	assert.Equal(t, CauseImmediate, s.Cause())
}

func TestSet_FirstTriggerWins(t *testing.T) {
	slow := NewTimed(time.Hour)
	fast := NewTimed(0)
	s := Of(slow, fast)

	done := s.Arm(nil)
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("set did not complete")
	}
	assert.Equal(t, TriggerCause(narrative.TriggerTimed), s.Cause())

	s.Disarm()
	assert.Equal(t, Idle, slow.State())
	assert.Equal(t, Triggered, fast.State())
}

func TestSet_ImplicitSource(t *testing.T) {
	s := Of(NewTimed(time.Hour))
	src := make(chan struct{})
	done := s.Arm(nil, src)
	assert.False(t, closed(done))

	close(src)
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("implicit source ignored")
	}
	assert.Equal(t, CauseContent, s.Cause())
	s.Disarm()
}

func TestSet_ImplicitOnlyIsNotImmediate(t *testing.T) {
	s := Of()
	src := make(chan struct{})
	done := s.Arm(nil, src)
	assert.False(t, closed(done))
	s.Disarm()
	close(src)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, closed(done), "disarmed set ignores sources")
}

func TestCause_Trigger(t *testing.T) {
	kind, ok := TriggerCause(narrative.TriggerVariable).Trigger()
	assert.True(t, ok)
	assert.Equal(t, narrative.TriggerVariable, kind)

	_, ok = CauseContent.Trigger()
	assert.False(t, ok)
}
