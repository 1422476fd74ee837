// Package media defines the controller contract atomic nodes play content
// through, and a registry resolving controllers by name.
package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// ErrUnknownController is returned for a controller name with no factory.
var ErrUnknownController = errors.New("unknown media controller")

// Controller plays one atomic node's content.
//
// EndOfContent returns a channel closed when playback finishes on its own, or
// nil if the controller never signals completion. It is valid after Play.
type Controller interface {
	Init(ctx context.Context) error
	Load(ctx context.Context, node *narrative.Node) error
	Play(ctx context.Context) error
	Unload(ctx context.Context) error
	HasMedia() bool
	EndOfContent() <-chan struct{}
}

// Factory creates a controller for a node.
type Factory func(node *narrative.Node) (Controller, error)

// Provider resolves a node's media binding to a fresh controller.
type Provider interface {
	Controller(node *narrative.Node) (Controller, error)
}

// Registry is a Provider keyed by controller name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in silent and clip controllers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(SilentName, func(*narrative.Node) (Controller, error) { return NewSilent(), nil })
	r.Register(ClipName, NewClip)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists registered controller names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Controller builds the controller bound to node. A node without a binding
// gets a silent controller.
func (r *Registry) Controller(node *narrative.Node) (Controller, error) {
	name := node.Media.Controller
	if name == "" {
		name = SilentName
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownController, name)
	}
	return f(node)
}
