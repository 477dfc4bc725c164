// internal/pool/pool_test.go
package pool

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// stubPool reports settable counters and records delegated requests.
// A delegated request consumes one ready server when there is one.
type stubPool struct {
	id       string
	mu       sync.Mutex
	counters Counters
	accept   bool
	calls    atomic.Int64
	released atomic.Int64
}

func (s *stubPool) read() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *stubPool) setReady(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Ready = n
}

func (s *stubPool) ID() string                 { return s.id }
func (s *stubPool) ServersReady() int          { return s.read().Ready }
func (s *stubPool) ServersStarting() int       { return s.read().Starting }
func (s *stubPool) ServersRunning() int        { return s.read().Running }
func (s *stubPool) MaxServersInPool() int      { return s.read().Max }
func (s *stubPool) PendingServerRequests() int { return s.read().Pending }

func (s *stubPool) CanAcceptRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accept
}

func (s *stubPool) GetServer(ctx context.Context, gameSessionID uuid.UUID, cfg *models.GameSessionConfiguration) (*models.Server, error) {
	s.calls.Inc()
	s.mu.Lock()
	if s.counters.Ready > 0 {
		s.counters.Ready--
		s.counters.Running++
	}
	s.mu.Unlock()
	return &models.Server{ID: uuid.New(), PoolID: s.id, State: models.ServerRunning, GameSessionID: gameSessionID}, nil
}

func (s *stubPool) Release(ctx context.Context, server *models.Server) error {
	s.released.Inc()
	return nil
}

func (s *stubPool) Dispose(ctx context.Context) error { return nil }

// manualProvisioner records starts and leaves readiness to the test.
type manualProvisioner struct {
	mu      sync.Mutex
	started []uuid.UUID
	stopped []uuid.UUID
	err     error
}

func (m *manualProvisioner) Start(ctx context.Context, server *models.Server, report Reporter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.started = append(m.started, server.ID)
	return nil
}

func (m *manualProvisioner) Stop(ctx context.Context, server *models.Server, report Reporter) error {
	m.mu.Lock()
	m.stopped = append(m.stopped, server.ID)
	m.mu.Unlock()
	return report.SetShutdown(server.ID)
}

func (m *manualProvisioner) startedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.started...)
}

func (m *manualProvisioner) stoppedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.stopped...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Server
}

func (r *recordingSink) ServerEvent(ctx context.Context, server models.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, server)
}

func (r *recordingSink) states() []models.ServerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ServerState, len(r.events))
	for i, e := range r.events {
		out[i] = e.State
	}
	return out
}
