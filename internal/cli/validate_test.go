package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidGraph(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 4 node(s) valid")
}

func TestValidateValidGraphJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", filepath.Join("testdata", "chain.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 4, resp.Data.Nodes)
}

func TestValidateBrokenGraph(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("testdata", "broken.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "output candidate not found: ghost")
	assert.Contains(t, out, "✗ Validation failed")
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join("testdata", "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
