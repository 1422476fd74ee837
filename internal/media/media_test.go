package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

func clipNode(duration string) *narrative.Node {
	return &narrative.Node{
		ID:   "n",
		Kind: narrative.KindAtomic,
		Media: narrative.MediaSpec{
			Controller: ClipName,
			Params:     map[string]string{"duration": duration},
		},
	}
}

func TestRegistry_ResolvesBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{ClipName, SilentName}, r.Names())

	c, err := r.Controller(&narrative.Node{ID: "quiet"})
	require.NoError(t, err)
	assert.IsType(t, &Silent{}, c)
	assert.False(t, c.HasMedia())
	assert.Nil(t, c.EndOfContent())

	_, err = r.Controller(&narrative.Node{ID: "x", Media: narrative.MediaSpec{Controller: "projector"}})
	assert.True(t, errors.Is(err, ErrUnknownController))
}

func TestClip_PlaysToCompletion(t *testing.T) {
	ctx := context.Background()
	c, err := NewRegistry().Controller(clipNode("5ms"))
	require.NoError(t, err)

	require.NoError(t, c.Init(ctx))
	assert.Error(t, c.Play(ctx), "play before load")
	require.NoError(t, c.Load(ctx, clipNode("5ms")))
	assert.True(t, c.HasMedia())
	require.NoError(t, c.Play(ctx))

	select {
	case <-c.EndOfContent():
	case <-time.After(time.Second):
		t.Fatal("clip never ended")
	}
	require.NoError(t, c.Unload(ctx))
	assert.False(t, c.HasMedia())
}

func TestClip_UnloadStopsPlayback(t *testing.T) {
	ctx := context.Background()
	c, err := NewClip(clipNode("0.05"))
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, c.(*Clip).Length())

	require.NoError(t, c.Load(ctx, nil))
	require.NoError(t, c.Play(ctx))
	require.NoError(t, c.Unload(ctx))

	select {
	case <-c.EndOfContent():
		t.Fatal("unloaded clip ended")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewClip_Params(t *testing.T) {
	_, err := NewClip(clipNode(""))
	assert.Error(t, err)
	_, err = NewClip(clipNode("later"))
	assert.Error(t, err)
}
