package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

const (
	SilentName = "silent"
	ClipName   = "clip"
)

// Silent has no media and never signals end of content.
type Silent struct{}

func NewSilent() *Silent { return &Silent{} }

func (*Silent) Init(context.Context) error { return nil }
func (*Silent) Load(context.Context, *narrative.Node) error { return nil }
func (*Silent) Play(context.Context) error { return nil }
func (*Silent) Unload(context.Context) error { return nil }
func (*Silent) HasMedia() bool { return false }
func (*Silent) EndOfContent() <-chan struct{} { return nil }

// Clip simulates content of a fixed length given by the "duration" param.
type Clip struct {
	length time.Duration

	mu      sync.Mutex
	loaded  bool
	timer   *time.Timer
	ended   chan struct{}
	endOnce sync.Once
}

// NewClip builds a clip controller for node.
func NewClip(node *narrative.Node) (Controller, error) {
	raw := node.Media.Params["duration"]
	if raw == "" {
		return nil, fmt.Errorf("clip %s: missing duration param", node.ID)
	}
	d, err := parseLength(raw)
	if err != nil {
		return nil, fmt.Errorf("clip %s: %w", node.ID, err)
	}
	return &Clip{length: d, ended: make(chan struct{})}, nil
}

func parseLength(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

// Length returns the clip length.
func (c *Clip) Length() time.Duration { return c.length }

func (c *Clip) Init(context.Context) error { return nil }

func (c *Clip) Load(context.Context, *narrative.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	return nil
}

func (c *Clip) Play(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return fmt.Errorf("clip not loaded")
	}
	if c.timer != nil {
		return nil
	}
	c.timer = time.AfterFunc(c.length, c.end)
	return nil
}

func (c *Clip) end() {
	c.endOnce.Do(func() { close(c.ended) })
}

func (c *Clip) Unload(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.loaded = false
	return nil
}

func (c *Clip) HasMedia() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Clip) EndOfContent() <-chan struct{} { return c.ended }
