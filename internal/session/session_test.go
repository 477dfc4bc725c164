// internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakePool hands out servers until it runs out and counts every call.
type fakePool struct {
	mu       sync.Mutex
	capacity int
	calls    int
	released []uuid.UUID
	err      error
	// releaseErr fails Release calls until cleared
	releaseErr error
}

func (f *fakePool) ID() string                 { return "fake" }
func (f *fakePool) ServersReady() int          { return 0 }
func (f *fakePool) ServersStarting() int       { return 0 }
func (f *fakePool) ServersRunning() int        { return 0 }
func (f *fakePool) MaxServersInPool() int      { return f.capacity }
func (f *fakePool) PendingServerRequests() int { return 0 }
func (f *fakePool) CanAcceptRequest() bool     { return true }
func (f *fakePool) Dispose(ctx context.Context) error {
	return nil
}

func (f *fakePool) GetServer(ctx context.Context, gameSessionID uuid.UUID, cfg *models.GameSessionConfiguration) (*models.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.capacity == 0 {
		return nil, pool.ErrNoCapacityAvailable
	}
	f.capacity--
	return &models.Server{ID: uuid.New(), PoolID: "fake", Endpoint: "10.0.0.1:7777", State: models.ServerRunning, GameSessionID: gameSessionID}, nil
}

func (f *fakePool) Release(ctx context.Context, server *models.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.released = append(f.released, server.ID)
	f.capacity++
	return nil
}

func TestStartAndEnd(t *testing.T) {
	ctx := context.Background()
	fp := &fakePool{capacity: 1}
	svc := NewService(fp, testLogger())

	id := uuid.New()
	gs, err := svc.Start(ctx, id, models.NewGameSessionConfiguration(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:7777", gs.Server.Endpoint)
	assert.Equal(t, id, gs.Server.GameSessionID)
	assert.Len(t, svc.List(), 1)

	_, err = svc.Start(ctx, id, nil)
	assert.ErrorIs(t, err, ErrSessionExists)

	require.NoError(t, svc.End(ctx, id))
	assert.Equal(t, []uuid.UUID{gs.Server.ID}, fp.released)
	assert.ErrorIs(t, svc.End(ctx, id), ErrUnknownSession)
	assert.Empty(t, svc.List())
}

func TestStartWithoutCapacityFailsOnce(t *testing.T) {
	fp := &fakePool{}
	svc := NewService(fp, testLogger())

	_, err := svc.Start(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrSessionStartFailed)
	assert.ErrorIs(t, err, pool.ErrNoCapacityAvailable)
	assert.Equal(t, 1, fp.calls)
	assert.Empty(t, svc.List())
}

func TestStartSurfacesPoolErrors(t *testing.T) {
	fp := &fakePool{err: errors.New("agent down")}
	svc := NewService(fp, testLogger())

	id := uuid.New()
	_, err := svc.Start(context.Background(), id, nil)
	assert.ErrorIs(t, err, ErrSessionStartFailed)

	// a failed start does not reserve the id
	fp.err = nil
	fp.capacity = 1
	_, err = svc.Start(context.Background(), id, nil)
	assert.NoError(t, err)
}

func TestAddTeamToOpenSession(t *testing.T) {
	fp := &fakePool{capacity: 1}
	svc := NewService(fp, testLogger())

	id := uuid.New()
	_, err := svc.Start(context.Background(), id, nil)
	require.NoError(t, err)

	player := uuid.New()
	require.NoError(t, svc.AddTeam(id, models.NewTeam("red", models.Group{PlayerIDs: []uuid.UUID{player}})))
	gs, err := svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{player}, gs.Configuration.Teams.PlayerIDs())

	assert.ErrorIs(t, svc.AddTeam(uuid.New(), models.NewTeam("blue")), ErrUnknownSession)
}

func TestEndCanBeRetriedAfterReleaseFailure(t *testing.T) {
	ctx := context.Background()
	fp := &fakePool{capacity: 1, releaseErr: errors.New("agent unreachable")}
	svc := NewService(fp, testLogger())

	id := uuid.New()
	gs, err := svc.Start(ctx, id, nil)
	require.NoError(t, err)

	err = svc.End(ctx, id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownSession)
	_, err = svc.Get(id)
	require.NoError(t, err, "session is kept while its server is still running")
	assert.Len(t, svc.List(), 1)

	fp.mu.Lock()
	fp.releaseErr = nil
	fp.mu.Unlock()

	require.NoError(t, svc.End(ctx, id))
	assert.Empty(t, svc.List())
	assert.Equal(t, []uuid.UUID{gs.Server.ID}, fp.released)
	assert.ErrorIs(t, svc.End(ctx, id), ErrUnknownSession)
}
