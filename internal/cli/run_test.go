package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/NarrativeEngine/internal/record"
	"github.com/AaronLay10/NarrativeEngine/internal/storage/sqlite"
)

func TestRunPrintsSequenceLog(t *testing.T) {
	out, err := execute(t, "run", "--seed", "7", filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "intro [atomic] depth=0 completed")
	assert.Contains(t, out, "dark [atomic] depth=0 completed")
	assert.NotContains(t, out, "bright")
}

func TestRunSetVariable(t *testing.T) {
	out, err := execute(t, "run", "--set", "lit=true", filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "bright [atomic]")
	assert.NotContains(t, out, "dark")
}

func TestRunJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", "--seed", "7", filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Completed)
	assert.Equal(t, int64(7), resp.Data.Seed)
	assert.Equal(t, []string{"intro@0", "dark@0", "end@0"}, record.Trace(resp.Data.Entries))
	assert.NotEmpty(t, resp.Data.RunID)
}

func TestRunRootOverride(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", "--root", "end", filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"end@0"}, record.Trace(resp.Data.Entries))
}

func TestRunTimeoutCancels(t *testing.T) {
	out, err := execute(t, "run", "--timeout", "50ms", filepath.Join("testdata", "hold.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "wait [atomic] depth=0 cancelled")
}

func TestRunTimeoutJSONKeepsRunID(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", "--timeout", "50ms", filepath.Join("testdata", "hold.yaml"))
	require.Error(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Completed)
	assert.NotEmpty(t, resp.Data.RunID)
}

func TestRunSilentNodeEndsOnContentTrigger(t *testing.T) {
	out, err := execute(t, "run", "--timeout", "2s", filepath.Join("testdata", "silent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "title [atomic] depth=0 completed")
	assert.Contains(t, out, "credits [atomic] depth=0 completed")
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing graph", []string{"run", filepath.Join("testdata", "nope.yaml")}},
		{"broken graph", []string{"run", filepath.Join("testdata", "broken.yaml")}},
		{"unknown root", []string{"run", "--root", "ghost", filepath.Join("testdata", "chain.yaml")}},
		{"bad set", []string{"run", "--set", "lit", filepath.Join("testdata", "chain.yaml")}},
		{"unknown variable", []string{"run", "--set", "dim=1", filepath.Join("testdata", "chain.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestRunWritesSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "run", "--db", db, filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)

	store, err := sqlite.Open(db)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)

	entries, err := store.Run(context.Background(), runs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"intro@0", "dark@0", "end@0"}, record.Trace(entries))
}
