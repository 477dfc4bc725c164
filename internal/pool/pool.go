// internal/pool/pool.go
package pool

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
)

var (
	// ErrNoCapacityAvailable means no pool could accept the allocation request.
	ErrNoCapacityAvailable = errors.New("no server capacity available")

	// ErrStaleConfiguration means a configuration update referenced an unknown pool.
	// The previous configuration stays in effect.
	ErrStaleConfiguration = errors.New("stale pool configuration")

	ErrUnknownServer = errors.New("unknown server")
	ErrUnknownPool   = errors.New("unknown pool")
	ErrPoolDisposed  = errors.New("pool disposed")

	// ErrNotPlacedOnAgent means an agent reported on a server it does not host.
	ErrNotPlacedOnAgent = errors.New("server not placed on agent")
)

// Pool is a source of dedicated-server capacity. Leaf and composite pools implement it alike.
type Pool interface {
	ID() string

	ServersReady() int
	ServersStarting() int
	ServersRunning() int
	MaxServersInPool() int
	PendingServerRequests() int

	// CanAcceptRequest reports whether the pool has spare starting or ready capacity.
	CanAcceptRequest() bool

	// GetServer returns a running server for the game session, or ErrNoCapacityAvailable.
	GetServer(ctx context.Context, gameSessionID uuid.UUID, cfg *models.GameSessionConfiguration) (*models.Server, error)

	// Release hands a server back once its session has ended.
	Release(ctx context.Context, server *models.Server) error

	// Dispose shuts down every started but unassigned server.
	Dispose(ctx context.Context) error
}

// Counters is a point-in-time reading of a pool's counters.
type Counters struct {
	Ready    int `json:"serversReady"`
	Starting int `json:"serversStarting"`
	Running  int `json:"serversRunning"`
	Max      int `json:"maxServersInPool"`
	Pending  int `json:"pendingServerRequests"`
}

// ReadCounters reads every counter of p.
func ReadCounters(p Pool) Counters {
	return Counters{
		Ready:    p.ServersReady(),
		Starting: p.ServersStarting(),
		Running:  p.ServersRunning(),
		Max:      p.MaxServersInPool(),
		Pending:  p.PendingServerRequests(),
	}
}

// Reporter receives lifecycle callbacks for servers a provisioner started.
type Reporter interface {
	SetReady(serverID uuid.UUID, endpoint string) error
	SetShutdown(serverID uuid.UUID) error
}

// Placer is implemented by reporters that track where a server runs.
type Placer interface {
	SetPlacement(serverID uuid.UUID, agentID, containerID string) error
}

// Provisioner actually starts and stops server instances for a leaf pool.
// Start only dispatches; readiness comes back later through the Reporter.
type Provisioner interface {
	Start(ctx context.Context, server *models.Server, report Reporter) error
	Stop(ctx context.Context, server *models.Server, report Reporter) error
}

// EventSink receives a record of every server lifecycle transition.
type EventSink interface {
	ServerEvent(ctx context.Context, server models.Server)
}
