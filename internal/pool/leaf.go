// internal/pool/leaf.go
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// LeafConfig is the static configuration of one homogeneous capacity source.
type LeafConfig struct {
	ID             string
	MaxServers     int
	ReadyThreshold int
}

type allocation struct {
	server *models.Server
	err    error
}

// waiter is one GetServer call waiting for a server to become ready.
type waiter struct {
	sessionID uuid.UUID
	ch        chan allocation // buffered, receives exactly one value
}

// LeafPool provisions servers directly through a Provisioner.
//
// All state transitions happen under mu; the counters are mirrored in atomics
// so they can be read without the lock. ready+starting+running never exceeds max.
type LeafPool struct {
	id             string
	max            int
	readyThreshold int

	provisioner Provisioner
	events      EventSink
	logger      *logrus.Entry

	mu       sync.Mutex
	servers  map[uuid.UUID]*models.Server
	readyQ   []uuid.UUID // ready and unassigned, oldest first
	waiters  []*waiter
	disposed bool

	nReady    atomic.Int64
	nStarting atomic.Int64
	nRunning  atomic.Int64
	nPending  atomic.Int64
}

// NewLeafPool builds a leaf pool. events may be nil.
func NewLeafPool(cfg LeafConfig, provisioner Provisioner, events EventSink, logger *logrus.Entry) *LeafPool {
	return &LeafPool{
		id:             cfg.ID,
		max:            cfg.MaxServers,
		readyThreshold: cfg.ReadyThreshold,
		provisioner:    provisioner,
		events:         events,
		logger:         logger.WithField("pool", cfg.ID),
		servers:        make(map[uuid.UUID]*models.Server),
	}
}

func (p *LeafPool) ID() string                 { return p.id }
func (p *LeafPool) ServersReady() int          { return int(p.nReady.Load()) }
func (p *LeafPool) ServersStarting() int       { return int(p.nStarting.Load()) }
func (p *LeafPool) ServersRunning() int        { return int(p.nRunning.Load()) }
func (p *LeafPool) MaxServersInPool() int      { return p.max }
func (p *LeafPool) PendingServerRequests() int { return int(p.nPending.Load()) }

// CanAcceptRequest is true when an unclaimed ready/starting server exists or a new one may be started.
func (p *LeafPool) CanAcceptRequest() bool {
	ready, starting, running, pending := p.nReady.Load(), p.nStarting.Load(), p.nRunning.Load(), p.nPending.Load()
	return ready+starting > pending || int(ready+starting+running) < p.max
}

// Warm starts servers up to the ready threshold.
func (p *LeafPool) Warm(ctx context.Context) {
	p.mu.Lock()
	toStart := p.planStartsUnsafe()
	p.mu.Unlock()
	p.startAll(ctx, toStart)
}

// GetServer hands out a ready server, or starts one and waits for it to report ready.
// If ctx ends first the request is withdrawn; a server started for it stays in the pool.
func (p *LeafPool) GetServer(ctx context.Context, gameSessionID uuid.UUID, cfg *models.GameSessionConfiguration) (*models.Server, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, ErrPoolDisposed
	}
	if len(p.readyQ) > 0 && len(p.waiters) == 0 {
		srv := p.assignUnsafe(p.popReadyUnsafe(), gameSessionID)
		toStart := p.planStartsUnsafe()
		p.mu.Unlock()
		p.emit(ctx, *srv)
		p.startAll(ctx, toStart)
		p.logger.WithFields(logrus.Fields{"server_id": srv.ID, "session_id": gameSessionID}).Info("assigned ready server")
		return srv, nil
	}
	if !p.canAcceptUnsafe() {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool %s: %w", p.id, ErrNoCapacityAvailable)
	}
	w := &waiter{sessionID: gameSessionID, ch: make(chan allocation, 1)}
	p.waiters = append(p.waiters, w)
	p.nPending.Inc()
	toStart := p.planStartsUnsafe()
	p.mu.Unlock()

	p.startAll(ctx, toStart)

	select {
	case res := <-w.ch:
		return res.server, res.err
	case <-ctx.Done():
		p.abandon(ctx, w)
		return nil, ctx.Err()
	}
}

// SetReady marks a starting server ready and hands it to the oldest waiting request.
func (p *LeafPool) SetReady(serverID uuid.UUID, endpoint string) error {
	p.mu.Lock()
	srv, ok := p.servers[serverID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: %w: %s", p.id, ErrUnknownServer, serverID)
	}
	if srv.State != models.ServerStarting {
		state := srv.State
		p.mu.Unlock()
		return fmt.Errorf("pool %s: server %s is %s, not %s", p.id, serverID, state, models.ServerStarting)
	}
	srv.Endpoint = endpoint
	srv.State = models.ServerReady
	p.nStarting.Dec()
	p.nReady.Inc()
	p.readyQ = append(p.readyQ, serverID)
	changed := []models.Server{*srv}
	changed = append(changed, p.dispatchUnsafe()...)
	toStart := p.planStartsUnsafe()
	p.mu.Unlock()

	ctx := context.Background()
	for _, s := range changed {
		p.emit(ctx, s)
	}
	p.startAll(ctx, toStart)
	p.logger.WithFields(logrus.Fields{"server_id": serverID, "endpoint": endpoint}).Info("server ready")
	return nil
}

// SetPlacement records where a provisioner placed a server.
func (p *LeafPool) SetPlacement(serverID uuid.UUID, agentID, containerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	srv, ok := p.servers[serverID]
	if !ok {
		return fmt.Errorf("pool %s: %w: %s", p.id, ErrUnknownServer, serverID)
	}
	srv.AgentID = agentID
	srv.ContainerID = containerID
	return nil
}

// Server returns a copy of one server of the pool.
func (p *LeafPool) Server(serverID uuid.UUID) (models.Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	srv, ok := p.servers[serverID]
	if !ok {
		return models.Server{}, fmt.Errorf("pool %s: %w: %s", p.id, ErrUnknownServer, serverID)
	}
	return *srv, nil
}

// SetShutdown removes a server in whatever state it was in.
func (p *LeafPool) SetShutdown(serverID uuid.UUID) error {
	p.mu.Lock()
	srv, ok := p.servers[serverID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: %w: %s", p.id, ErrUnknownServer, serverID)
	}
	p.removeUnsafe(srv)
	final := *srv
	toStart := p.planStartsUnsafe()
	p.mu.Unlock()

	ctx := context.Background()
	p.emit(ctx, final)
	p.startAll(ctx, toStart)
	p.logger.WithField("server_id", serverID).Info("server shut down")
	return nil
}

// Release stops a running server. The pool forgets it once the provisioner reports shutdown.
func (p *LeafPool) Release(ctx context.Context, server *models.Server) error {
	p.mu.Lock()
	srv, ok := p.servers[server.ID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: %w: %s", p.id, ErrUnknownServer, server.ID)
	}
	cp := *srv
	p.mu.Unlock()

	if err := p.provisioner.Stop(ctx, &cp, p); err != nil {
		return fmt.Errorf("pool %s: stop server %s: %w", p.id, server.ID, err)
	}
	return nil
}

// Dispose fails pending requests and stops every server not assigned to a session.
func (p *LeafPool) Dispose(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	for _, w := range p.waiters {
		w.ch <- allocation{err: ErrPoolDisposed}
	}
	p.nPending.Sub(int64(len(p.waiters)))
	p.waiters = nil
	var idle []models.Server
	for _, srv := range p.servers {
		if srv.State == models.ServerStarting || srv.State == models.ServerReady {
			idle = append(idle, *srv)
		}
	}
	p.mu.Unlock()

	var firstErr error
	for i := range idle {
		if err := p.provisioner.Stop(ctx, &idle[i], p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pool %s: stop server %s: %w", p.id, idle[i].ID, err)
		}
	}
	p.logger.WithField("stopped", len(idle)).Info("pool disposed")
	return firstErr
}

// Servers lists the servers the pool currently tracks.
func (p *LeafPool) Servers() []models.Server {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Server, 0, len(p.servers))
	for _, srv := range p.servers {
		out = append(out, *srv)
	}
	return out
}

func (p *LeafPool) canAcceptUnsafe() bool {
	ready, starting, running := len(p.readyQ), int(p.nStarting.Load()), int(p.nRunning.Load())
	return ready+starting > len(p.waiters) || ready+starting+running < p.max
}

// planStartsUnsafe creates the starting servers needed to cover waiting requests
// plus the ready threshold, bounded by max. Assumes mu is held.
func (p *LeafPool) planStartsUnsafe() []*models.Server {
	if p.disposed {
		return nil
	}
	ready, starting, running := len(p.readyQ), int(p.nStarting.Load()), int(p.nRunning.Load())
	need := len(p.waiters) + p.readyThreshold - ready - starting
	if room := p.max - ready - starting - running; need > room {
		need = room
	}
	var out []*models.Server
	for i := 0; i < need; i++ {
		srv := &models.Server{
			ID:        uuid.New(),
			PoolID:    p.id,
			State:     models.ServerStarting,
			CreatedAt: time.Now(),
		}
		p.servers[srv.ID] = srv
		p.nStarting.Inc()
		cp := *srv
		out = append(out, &cp)
	}
	return out
}

// startAll dispatches starts outside the lock. A caller abandoning its request must not
// cancel provisioning, so the context is detached from ctx's cancellation.
func (p *LeafPool) startAll(ctx context.Context, servers []*models.Server) {
	if len(servers) == 0 {
		return
	}
	startCtx := context.WithoutCancel(ctx)
	for _, srv := range servers {
		p.emit(startCtx, *srv)
		if err := p.provisioner.Start(startCtx, srv, p); err != nil {
			p.logger.WithError(err).WithField("server_id", srv.ID).Warn("failed to start server")
			p.failStart(srv.ID, err)
		}
	}
}

// failStart drops a server whose start could not be dispatched. Waiting requests that
// no remaining capacity can cover are failed rather than left hanging.
func (p *LeafPool) failStart(serverID uuid.UUID, cause error) {
	p.mu.Lock()
	srv, ok := p.servers[serverID]
	if !ok {
		p.mu.Unlock()
		return
	}
	p.removeUnsafe(srv)
	final := *srv
	for len(p.waiters) > len(p.readyQ)+int(p.nStarting.Load()) {
		w := p.waiters[len(p.waiters)-1]
		p.waiters = p.waiters[:len(p.waiters)-1]
		p.nPending.Dec()
		w.ch <- allocation{err: fmt.Errorf("pool %s: %w: %w", p.id, ErrNoCapacityAvailable, cause)}
	}
	p.mu.Unlock()
	p.emit(context.Background(), final)
}

// abandon withdraws a waiter whose caller gave up.
func (p *LeafPool) abandon(ctx context.Context, w *waiter) {
	p.mu.Lock()
	for i, cur := range p.waiters {
		if cur == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.nPending.Dec()
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// already answered; a server handed over in the meantime goes back to the ready set
	res := <-w.ch
	if res.server == nil {
		return
	}
	p.mu.Lock()
	srv, ok := p.servers[res.server.ID]
	if !ok || srv.State != models.ServerRunning {
		p.mu.Unlock()
		return
	}
	srv.State = models.ServerReady
	srv.GameSessionID = uuid.Nil
	p.nRunning.Dec()
	p.nReady.Inc()
	p.readyQ = append(p.readyQ, srv.ID)
	changed := []models.Server{*srv}
	changed = append(changed, p.dispatchUnsafe()...)
	p.mu.Unlock()

	for _, s := range changed {
		p.emit(ctx, s)
	}
	p.logger.WithField("server_id", res.server.ID).Info("returned server from abandoned request")
}

// dispatchUnsafe pairs ready servers with waiting requests, oldest first. Assumes mu is held.
func (p *LeafPool) dispatchUnsafe() []models.Server {
	var changed []models.Server
	for len(p.waiters) > 0 && len(p.readyQ) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.nPending.Dec()
		srv := p.assignUnsafe(p.popReadyUnsafe(), w.sessionID)
		w.ch <- allocation{server: srv}
		changed = append(changed, *srv)
	}
	return changed
}

func (p *LeafPool) popReadyUnsafe() uuid.UUID {
	id := p.readyQ[0]
	p.readyQ = p.readyQ[1:]
	return id
}

// assignUnsafe moves a ready server to running for a session and returns a copy.
func (p *LeafPool) assignUnsafe(serverID uuid.UUID, sessionID uuid.UUID) *models.Server {
	srv := p.servers[serverID]
	srv.State = models.ServerRunning
	srv.GameSessionID = sessionID
	p.nReady.Dec()
	p.nRunning.Inc()
	cp := *srv
	return &cp
}

// removeUnsafe takes srv out of the counters and the server map.
func (p *LeafPool) removeUnsafe(srv *models.Server) {
	switch srv.State {
	case models.ServerStarting:
		p.nStarting.Dec()
	case models.ServerReady:
		p.nReady.Dec()
		for i, id := range p.readyQ {
			if id == srv.ID {
				p.readyQ = append(p.readyQ[:i], p.readyQ[i+1:]...)
				break
			}
		}
	case models.ServerRunning:
		p.nRunning.Dec()
	}
	srv.State = models.ServerShutdown
	delete(p.servers, srv.ID)
}

func (p *LeafPool) emit(ctx context.Context, srv models.Server) {
	if p.events != nil {
		p.events.ServerEvent(ctx, srv)
	}
}
