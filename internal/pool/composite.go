// internal/pool/composite.go
package pool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// CompositeConfig is a reconfiguration request for a composite pool.
type CompositeConfig struct {
	ReadyThreshold int
	Children       []string
}

// compositeState is never mutated after it is published.
type compositeState struct {
	readyThreshold int
	children       []Pool
}

// CompositePool routes allocation requests across child pools. It holds no servers itself;
// every counter is summed over the children current at the time of the read.
type CompositePool struct {
	id       string
	registry *Registry
	state    atomic.Pointer[compositeState]
	logger   *logrus.Entry
}

// NewCompositePool returns a composite with no children. Children are resolved through registry.
func NewCompositePool(id string, registry *Registry, logger *logrus.Entry) *CompositePool {
	c := &CompositePool{
		id:       id,
		registry: registry,
		logger:   logger.WithField("pool", id),
	}
	c.state.Store(&compositeState{})
	return c
}

func (c *CompositePool) ID() string { return c.id }

// Children returns the current child list. The slice must not be modified.
func (c *CompositePool) Children() []Pool { return c.state.Load().children }

func (c *CompositePool) ReadyThreshold() int { return c.state.Load().readyThreshold }

// UpdateConfiguration swaps in a new child list. If any id cannot be resolved, or would make
// the composite contain itself, ErrStaleConfiguration is returned and nothing changes.
func (c *CompositePool) UpdateConfiguration(cfg CompositeConfig) error {
	children := make([]Pool, 0, len(cfg.Children))
	for _, id := range cfg.Children {
		p, err := c.registry.Get(id)
		if err != nil {
			return fmt.Errorf("composite %s: %w: %w", c.id, ErrStaleConfiguration, err)
		}
		if containsPool(p, c.id) {
			return fmt.Errorf("composite %s: %w: %s would contain itself", c.id, ErrStaleConfiguration, id)
		}
		children = append(children, p)
	}
	c.state.Store(&compositeState{readyThreshold: cfg.ReadyThreshold, children: children})
	c.logger.WithFields(logrus.Fields{
		"children":        cfg.Children,
		"ready_threshold": cfg.ReadyThreshold,
	}).Info("composite reconfigured")
	return nil
}

func containsPool(p Pool, id string) bool {
	if p.ID() == id {
		return true
	}
	if c, ok := p.(*CompositePool); ok {
		for _, child := range c.Children() {
			if containsPool(child, id) {
				return true
			}
		}
	}
	return false
}

func (c *CompositePool) sum(read func(Pool) int) int {
	total := 0
	for _, child := range c.Children() {
		total += read(child)
	}
	return total
}

func (c *CompositePool) ServersReady() int    { return c.sum(Pool.ServersReady) }
func (c *CompositePool) ServersStarting() int { return c.sum(Pool.ServersStarting) }
func (c *CompositePool) ServersRunning() int  { return c.sum(Pool.ServersRunning) }
func (c *CompositePool) MaxServersInPool() int {
	return c.sum(Pool.MaxServersInPool)
}
func (c *CompositePool) PendingServerRequests() int {
	return c.sum(Pool.PendingServerRequests)
}

// CanAcceptRequest is true when any child can accept a request.
func (c *CompositePool) CanAcceptRequest() bool {
	for _, child := range c.Children() {
		if child.CanAcceptRequest() {
			return true
		}
	}
	return false
}

// selectChild picks the last child with a ready server, else the first child that can accept a request.
func selectChild(children []Pool) Pool {
	for i := len(children) - 1; i >= 0; i-- {
		if children[i].ServersReady() > 0 {
			return children[i]
		}
	}
	for _, child := range children {
		if child.CanAcceptRequest() {
			return child
		}
	}
	return nil
}

// GetServer forwards the request unchanged to one child chosen by selectChild.
func (c *CompositePool) GetServer(ctx context.Context, gameSessionID uuid.UUID, cfg *models.GameSessionConfiguration) (*models.Server, error) {
	child := selectChild(c.Children())
	if child == nil {
		return nil, fmt.Errorf("composite %s: %w", c.id, ErrNoCapacityAvailable)
	}
	c.logger.WithFields(logrus.Fields{"child": child.ID(), "session_id": gameSessionID}).Debug("delegating server request")
	return child.GetServer(ctx, gameSessionID, cfg)
}

// Release routes the server back to the pool that created it.
func (c *CompositePool) Release(ctx context.Context, server *models.Server) error {
	owner, err := c.registry.Get(server.PoolID)
	if err != nil {
		return fmt.Errorf("composite %s: release %s: %w", c.id, server.ID, err)
	}
	if owner == Pool(c) {
		return fmt.Errorf("composite %s: %w: %s", c.id, ErrUnknownServer, server.ID)
	}
	return owner.Release(ctx, server)
}

// Dispose disposes the current children in parallel.
func (c *CompositePool) Dispose(ctx context.Context) error {
	// a failing pool must not cancel the others
	var g errgroup.Group
	for _, child := range c.Children() {
		g.Go(func() error { return child.Dispose(ctx) })
	}
	return g.Wait()
}
