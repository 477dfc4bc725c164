// internal/pool/registry.go
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry holds every pool of the process by id.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]Pool
}

func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]Pool)}
}

// Register adds p. Ids are unique across leaves and composites.
func (r *Registry) Register(p Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pools[p.ID()]; exists {
		return fmt.Errorf("pool %q already registered", p.ID())
	}
	r.pools[p.ID()] = p
	return nil
}

// Get retrieves a pool by id.
func (r *Registry) Get(id string) (Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, id)
	}
	return p, nil
}

// Leaf retrieves a leaf pool by id, for lifecycle callbacks.
func (r *Registry) Leaf(id string) (*LeafPool, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	leaf, ok := p.(*LeafPool)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a leaf pool", ErrUnknownPool, id)
	}
	return leaf, nil
}

// Composite retrieves a composite pool by id.
func (r *Registry) Composite(id string) (*CompositePool, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	c, ok := p.(*CompositePool)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a composite pool", ErrUnknownPool, id)
	}
	return c, nil
}

// All returns the registered pools sorted by id.
func (r *Registry) All() []Pool {
	r.mu.RLock()
	out := make([]Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Dispose disposes every leaf pool in parallel. Composites own no servers of their own.
func (r *Registry) Dispose(ctx context.Context) error {
	// a failing pool must not cancel the others
	var g errgroup.Group
	for _, p := range r.All() {
		leaf, ok := p.(*LeafPool)
		if !ok {
			continue
		}
		g.Go(func() error { return leaf.Dispose(ctx) })
	}
	return g.Wait()
}
