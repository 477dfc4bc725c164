// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionStartFailed wraps whatever stopped a session from getting a server.
	ErrSessionStartFailed = errors.New("game session start failed")
	ErrUnknownSession     = errors.New("unknown game session")
	ErrSessionExists      = errors.New("game session already started")
)

// GameSession binds a configured match to the server hosting it.
type GameSession struct {
	ID            uuid.UUID                        `json:"id"`
	Configuration *models.GameSessionConfiguration `json:"configuration"`
	Server        models.Server                    `json:"server"`
	StartedAt     time.Time                        `json:"startedAt"`
}

// Service starts and ends game sessions against a server pool.
type Service struct {
	pool   pool.Pool
	logger *logrus.Entry

	mu       sync.RWMutex
	sessions map[uuid.UUID]*GameSession
	starting map[uuid.UUID]bool
	ending   map[uuid.UUID]bool
}

func NewService(p pool.Pool, logger *logrus.Entry) *Service {
	return &Service{
		pool:     p,
		logger:   logger,
		sessions: make(map[uuid.UUID]*GameSession),
		starting: make(map[uuid.UUID]bool),
		ending:   make(map[uuid.UUID]bool),
	}
}

// Start asks the pool for a server exactly once. Any failure, including a lack of
// capacity, is returned as ErrSessionStartFailed; retrying is up to the caller.
func (s *Service) Start(ctx context.Context, sessionID uuid.UUID, cfg *models.GameSessionConfiguration) (*GameSession, error) {
	if cfg == nil {
		cfg = models.NewGameSessionConfiguration(uuid.Nil)
	}
	if cfg.Teams == nil {
		cfg.Teams = models.NewTeamSet()
	}
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; ok || s.starting[sessionID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	s.starting[sessionID] = true
	s.mu.Unlock()

	begin := time.Now()
	srv, err := s.pool.GetServer(ctx, sessionID, cfg)
	observeStart(err, time.Since(begin))

	s.mu.Lock()
	delete(s.starting, sessionID)
	if err != nil {
		s.mu.Unlock()
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("session start failed")
		return nil, fmt.Errorf("%w: %w", ErrSessionStartFailed, err)
	}
	gs := &GameSession{ID: sessionID, Configuration: cfg, Server: *srv, StartedAt: time.Now()}
	s.sessions[sessionID] = gs
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"server_id":  srv.ID,
		"pool":       srv.PoolID,
		"endpoint":   srv.Endpoint,
	}).Info("session started")
	return gs, nil
}

// End releases the session's server back to the pool. If the release fails the session
// is kept so End can be retried.
func (s *Service) End(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	gs, ok := s.sessions[sessionID]
	if !ok || s.ending[sessionID] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	s.ending[sessionID] = true
	s.mu.Unlock()

	err := s.pool.Release(ctx, &gs.Server)

	s.mu.Lock()
	delete(s.ending, sessionID)
	if err == nil {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Warn("session release failed")
		return fmt.Errorf("release server %s: %w", gs.Server.ID, err)
	}
	s.logger.WithField("session_id", sessionID).Info("session ended")
	return nil
}

func (s *Service) Get(sessionID uuid.UUID) (*GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return gs, nil
}

// List returns the running sessions, oldest first.
func (s *Service) List() []*GameSession {
	s.mu.RLock()
	out := make([]*GameSession, 0, len(s.sessions))
	for _, gs := range s.sessions {
		out = append(out, gs)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// AddTeam appends a team to a session that is already open.
func (s *Service) AddTeam(sessionID uuid.UUID, team *models.Team) error {
	gs, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	gs.Configuration.Teams.Add(team)
	return nil
}
