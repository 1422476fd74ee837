package variables

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Kinds(t *testing.T) {
	v, err := Parse(KindBool, "true")
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, err = Parse(KindInt, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int)

	v, err = Parse(KindFloat, "2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.Float)

	v, err = Parse(KindDate, "2024-03-01")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(v.Time))

	v, err = Parse(KindReference, "node_a")
	require.NoError(t, err)
	assert.Equal(t, "node_a", v.Str)

	_, err = Parse(KindInt, "nope")
	assert.Error(t, err)
	_, err = Parse(Kind("blob"), "x")
	assert.Error(t, err)
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Int(3).Equal(Float(3)))
	assert.False(t, Int(3).Equal(String("3")))
	assert.True(t, Reference("a").Equal(Reference("a")))
	assert.False(t, Reference("a").Equal(String("a")))
	assert.True(t, Bool(false).Equal(Bool(false)))
}

func TestMemoryStore_DefineGetSet(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Define("score", KindInt, "5"))

	v, ok := s.Get("score")
	require.True(t, ok)
	assert.Equal(t, int64(5), v.Int)

	require.NoError(t, s.Set("score", "7"))
	v, _ = s.Get("score")
	assert.Equal(t, int64(7), v.Int)

	assert.ErrorIs(t, s.Set("missing", "1"), ErrUnknownVariable)
	assert.Error(t, s.Set("score", "seven"))

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestMemoryStore_SetValueKindMismatch(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Define("flag", KindBool, ""))
	assert.Error(t, s.SetValue("flag", String("true")))
}

func TestMemoryStore_SubscribeOrderedAndUnsubscribe(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Define("n", KindInt, "0"))

	var got []int64
	unsub := s.Subscribe(func(c Change) {
		got = append(got, c.New.Int)
	})
	assert.Equal(t, 1, s.SubscriberCount())

	require.NoError(t, s.Set("n", "1"))
	require.NoError(t, s.Set("n", "2"))
	unsub()
	unsub()
	require.NoError(t, s.Set("n", "3"))

	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestMemoryStore_ConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Define("n", KindInt, "0"))

	var mu sync.Mutex
	count := 0
	s.Subscribe(func(Change) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set("n", "1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}

func TestNilStoreGet(t *testing.T) {
	var s *MemoryStore
	_, ok := s.Get("x")
	assert.False(t, ok)
}
