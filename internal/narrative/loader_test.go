package narrative

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/NarrativeEngine/internal/constraint"
	"github.com/AaronLay10/NarrativeEngine/internal/variables"
)

func TestLoad_YAML(t *testing.T) {
	g, err := Load("testdata/lantern.yaml")
	require.NoError(t, err)

	assert.Equal(t, "intro", g.Root)
	assert.Equal(t, 8, g.Len())
	assert.Len(t, g.Variables, 2)

	intro, ok := g.Node("intro")
	require.True(t, ok)
	assert.Equal(t, KindAtomic, intro.Kind)
	assert.Equal(t, "Intro", intro.Label())
	assert.Equal(t, "clip", intro.Media.Controller)
	assert.Equal(t, UnloadOnTriggerComplete, intro.Media.Unload)
	assert.Equal(t, "10ms", intro.Media.Params["duration"])
	assert.Equal(t, []string{"locked", "hall"}, intro.Output.Candidates)
	require.Len(t, intro.Output.Constraints, 1)
	assert.True(t, intro.Output.Constraints[0].Resolved())
	assert.Equal(t, GUIDFor("intro"), intro.GUID)

	hall, _ := g.Node("hall")
	assert.Equal(t, "narration", hall.Layer.Primary)
	require.Len(t, hall.Triggers, 1)
	assert.True(t, hall.Triggers[0].MatchValue)
	assert.Equal(t, "true", hall.Triggers[0].Value)

	drip, _ := g.Node("drip")
	assert.Equal(t, 10*time.Millisecond, drip.Triggers[0].Duration)

	ambience, _ := g.Node("ambience")
	require.NotNil(t, ambience.Locals)
	v, ok := ambience.Locals.Get("loops")
	require.True(t, ok)
	assert.Equal(t, variables.KindInt, v.Kind)

	locked, _ := g.Node("locked")
	assert.Equal(t, UnloadOnProcessingComplete, locked.Media.Unload, "atomic default unload policy")
	assert.Equal(t, constraint.ValidIfAll, locked.ConstraintMode)

	assert.Empty(t, Validate(g))
}

func TestLoad_JSON(t *testing.T) {
	g, err := Load("testdata/minimal.json")
	require.NoError(t, err)
	a, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "First", a.Output.Algorithm)
	assert.Equal(t, TriggerTimed, a.Triggers[0].Kind)
	assert.Zero(t, a.Triggers[0].Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/absent.yaml")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "testdata/absent.yaml", le.Path)
}

func TestDecode_Errors(t *testing.T) {
	cases := map[string]string{
		"version":   `{"version": 2, "root": "a", "nodes": []}`,
		"type":      `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "scene"}]}`,
		"duplicate": `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "atomic"}, {"id": "a", "type": "atomic"}]}`,
		"trigger":   `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "atomic", "triggers": [{"type": "clock"}]}]}`,
		"duration":  `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "atomic", "triggers": [{"type": "timed", "duration": "soon"}]}]}`,
		"group":     `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "group"}]}`,
		"unload":    `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "atomic", "media": {"controller": "clip", "unload": "sometimes"}}]}`,
		"syntax":    `{"version": 1,`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc), FormatJSON)
			var le *LoadError
			assert.True(t, errors.As(err, &le), "expected LoadError, got %v", err)
		})
	}
}

func TestDecode_UnknownConstraintTypeExcludes(t *testing.T) {
	doc := `{"version": 1, "root": "a", "nodes": [{"id": "a", "type": "atomic",
		"constraints": [{"variable": "x", "type": "colour", "op": "eq", "value": "red"}]}]}`
	g, err := Decode([]byte(doc), FormatJSON)
	require.NoError(t, err)
	a, _ := g.Node("a")
	require.Len(t, a.Constraints, 1)
	assert.False(t, a.Constraints[0].Resolved())

	issues := Validate(g)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
}

func TestValidate_Broken(t *testing.T) {
	g, err := Load("testdata/broken.yaml")
	require.NoError(t, err)

	issues := Validate(g)
	assert.True(t, HasErrors(issues))

	var msgs []string
	for _, i := range issues {
		msgs = append(msgs, i.String())
	}
	assert.Contains(t, msgs, "error: start: output candidate not found: ghost")
	assert.Contains(t, msgs, "error: start: graph node has no root")
	assert.Contains(t, msgs, "error: split: layer candidate not found: phantom")
	assert.Contains(t, msgs, "warning: split: layer primary nowhere is not a candidate")
}

func TestNewGraph_Globals(t *testing.T) {
	g, err := NewGraph("a", &Node{ID: "a", Kind: KindAtomic})
	require.NoError(t, err)
	g.Variables = []VariableSpec{{Name: "flag", Kind: variables.KindBool, Default: "true"}}

	s, err := g.NewGlobals()
	require.NoError(t, err)
	v, ok := s.Get("flag")
	require.True(t, ok)
	assert.True(t, v.Bool)

	_, err = NewGraph("a", &Node{ID: "a"}, &Node{ID: "a"})
	assert.Error(t, err)
}
