package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
	"github.com/AaronLay10/NarrativeEngine/internal/record"
)

var _ record.Sink = (*Store)(nil)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sequence.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AppendAndRun(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	rec := record.New(s)
	rec.Append(ctx, record.Entry{RunID: "r1", NodeID: "intro", NodeName: "Intro", Kind: narrative.KindAtomic})
	rec.Append(ctx, record.Entry{RunID: "r1", NodeID: "bow", Kind: narrative.KindAtomic, Depth: 1, Cancelled: true})
	require.NoError(t, s.AppendEntry(ctx, record.Entry{RunID: "r2", Seq: 1, NodeID: "x", Kind: narrative.KindGroup, At: at}))

	got, err := s.Run(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"intro@0", "bow@1!"}, record.Trace(got))
	assert.Equal(t, "Intro", got[0].NodeName)
	assert.Empty(t, got[1].NodeName)
	assert.True(t, rec.Entries()[0].At.Equal(got[0].At))

	r2, err := s.Run(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.Equal(t, narrative.KindGroup, r2[0].Kind)
	assert.True(t, at.Equal(r2[0].At))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, runs)
}

func TestStore_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sequence.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendEntry(context.Background(), record.Entry{RunID: "r", Seq: 1, NodeID: "a", Kind: narrative.KindAtomic, At: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Run(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@0"}, record.Trace(got))
}

func TestStore_ClosedReportsError(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Close())
	err := s.AppendEntry(context.Background(), record.Entry{RunID: "r", Seq: 1, NodeID: "a", Kind: narrative.KindAtomic})
	assert.Error(t, err)
}
