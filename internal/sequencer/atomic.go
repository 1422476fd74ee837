package sequencer

import (
	"context"
	"sync"

	"github.com/AaronLay10/NarrativeEngine/internal/events"
	"github.com/AaronLay10/NarrativeEngine/internal/media"
	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// atomicBody plays the node's media controller. The controller's own end of
// content is an implicit completion source.
type atomicBody struct {
	rt *Runtime
	n  *narrative.Node

	mu       sync.Mutex
	active   media.Controller
	prepared media.Controller
	kept     media.Controller
	watcher  chan struct{}
}

func (a *atomicBody) acquire(ctx context.Context) (media.Controller, error) {
	c, err := a.rt.media.Controller(a.n)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if err := c.Load(ctx, a.n); err != nil {
		_ = c.Unload(ctx)
		return nil, err
	}
	return c, nil
}

func (a *atomicBody) mediaError(stage string, err error) {
	a.rt.emit(events.LevelWarn, "media.error", err.Error(), map[string]interface{}{
		"node_id":    a.n.ID,
		"controller": a.n.Media.Controller,
		"stage":      stage,
	})
}

func (a *atomicBody) unload(ctx context.Context, c media.Controller, reason string) {
	had := c.HasMedia()
	if err := c.Unload(ctx); err != nil {
		a.mediaError("unload", err)
		return
	}
	if !had {
		return
	}
	a.rt.emit(events.LevelDebug, "media.unloaded", "", map[string]interface{}{
		"node_id": a.n.ID,
		"reason":  reason,
	})
}

// preload acquires a controller ahead of selection.
func (a *atomicBody) preload(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prepared != nil || a.kept != nil || a.active != nil {
		return false
	}
	c, err := a.acquire(ctx)
	if err != nil {
		a.mediaError("prepare", err)
		return false
	}
	a.prepared = c
	return true
}

// drop releases a preloaded controller that was not selected.
func (a *atomicBody) drop(ctx context.Context) {
	a.mu.Lock()
	c := a.prepared
	a.prepared = nil
	a.mu.Unlock()
	if c != nil {
		a.unload(ctx, c, "not_selected")
	}
}

func (a *atomicBody) pre(ctx context.Context, _ *Sequencer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.prepared
	a.prepared = nil
	if c == nil {
		c = a.kept
		a.kept = nil
	}
	if c == nil {
		var err error
		c, err = a.acquire(ctx)
		if err != nil {
			a.mediaError("load", err)
			a.active = nil
			return false
		}
	}
	a.active = c
	return c.HasMedia() && c.EndOfContent() != nil
}

func (a *atomicBody) run(ctx context.Context, _ *Sequencer, contentDone func()) {
	a.mu.Lock()
	c := a.active
	a.mu.Unlock()
	if c == nil {
		return
	}
	if err := c.Play(ctx); err != nil {
		a.mediaError("play", err)
		contentDone()
		return
	}
	end := c.EndOfContent()
	if end == nil {
		return
	}
	watcher := make(chan struct{})
	a.mu.Lock()
	a.watcher = watcher
	a.mu.Unlock()
	go func() {
		defer close(watcher)
		select {
		case <-end:
			contentDone()
		case <-ctx.Done():
		}
	}()
}

func (a *atomicBody) settle(ctx context.Context, cancelled bool) {
	if cancelled || a.n.Media.Unload != narrative.UnloadOnTriggerComplete {
		return
	}
	a.mu.Lock()
	c := a.active
	a.active = nil
	a.mu.Unlock()
	if c != nil {
		a.unload(context.WithoutCancel(ctx), c, string(narrative.UnloadOnTriggerComplete))
	}
}

func (a *atomicBody) post(ctx context.Context, cancelled bool) {
	a.mu.Lock()
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()
	if watcher != nil {
		<-watcher
	}
	if !cancelled {
		return
	}
	a.mu.Lock()
	c := a.active
	a.active = nil
	a.mu.Unlock()
	if c != nil {
		a.unload(ctx, c, "cancelled")
	}
}

// finish applies the unload policy once the node has fully finished.
func (a *atomicBody) finish(ctx context.Context) {
	a.mu.Lock()
	c := a.active
	a.active = nil
	if c != nil && a.n.Media.Unload == narrative.UnloadNever {
		a.kept = c
		c = nil
	}
	a.mu.Unlock()
	if c != nil {
		a.unload(ctx, c, string(narrative.UnloadOnProcessingComplete))
	}
}
