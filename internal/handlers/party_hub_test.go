// internal/handlers/party_hub_test.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu      sync.Mutex
	written [][]byte
	closed  websocket.StatusCode
}

func (f *fakeSocket) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, p)
	return nil
}

func (f *fakeSocket) Close(code websocket.StatusCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = code
	return nil
}

func (f *fakeSocket) closeCode() websocket.StatusCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestPartyHubDeliver(t *testing.T) {
	hub := NewPartyHub(logrus.NewEntry(testLogger()))
	user, partyID := uuid.New(), uuid.New()
	state := &models.PartyState{PartyID: partyID}

	err := hub.Deliver(context.Background(), user, state)
	assert.ErrorIs(t, err, ErrNotConnected)

	sock := &fakeSocket{}
	pc := &partyConn{userID: user, partyID: partyID, ws: sock}
	hub.Register(pc)
	require.NoError(t, hub.Deliver(context.Background(), user, state))
	require.Len(t, sock.written, 1)

	var msg stateMessage
	require.NoError(t, json.Unmarshal(sock.written[0], &msg))
	assert.Equal(t, "party_state", msg.Type)
	assert.Equal(t, partyID, msg.State.PartyID)

	// the socket belongs to another party
	err = hub.Deliver(context.Background(), user, &models.PartyState{PartyID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.True(t, hub.Unregister(pc))
	assert.ErrorIs(t, hub.Deliver(context.Background(), user, state), ErrNotConnected)
}

func TestPartyHubReplacesConnection(t *testing.T) {
	hub := NewPartyHub(logrus.NewEntry(testLogger()))
	user, partyID := uuid.New(), uuid.New()

	first, second := &fakeSocket{}, &fakeSocket{}
	firstConn := &partyConn{userID: user, partyID: partyID, ws: first}
	hub.Register(firstConn)
	hub.Register(&partyConn{userID: user, partyID: partyID, ws: second})

	assert.Eventually(t, func() bool {
		return first.closeCode() == websocket.StatusPolicyViolation
	}, time.Second, 10*time.Millisecond)

	// a stale unregister leaves the newer connection in place
	assert.False(t, hub.Unregister(firstConn))
	require.NoError(t, hub.Deliver(context.Background(), user, &models.PartyState{PartyID: partyID}))
	assert.Len(t, second.written, 1)

	hub.Disconnect(uuid.New(), user, KickedFromPartyError, "kicked")
	assert.Never(t, func() bool { return second.closeCode() != 0 }, 50*time.Millisecond, 10*time.Millisecond)

	hub.Disconnect(partyID, user, KickedFromPartyError, "kicked")
	assert.Eventually(t, func() bool {
		return second.closeCode() == KickedFromPartyError
	}, time.Second, 10*time.Millisecond)
}

func TestPartyHubKeepsSocketsOnSeparateParties(t *testing.T) {
	hub := NewPartyHub(logrus.NewEntry(testLogger()))
	user, partyA, partyB := uuid.New(), uuid.New(), uuid.New()

	sockA, sockB := &fakeSocket{}, &fakeSocket{}
	connA := &partyConn{userID: user, partyID: partyA, ws: sockA}
	connB := &partyConn{userID: user, partyID: partyB, ws: sockB}
	hub.Register(connA)
	hub.Register(connB)

	assert.Never(t, func() bool { return sockA.closeCode() != 0 }, 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, hub.Deliver(context.Background(), user, &models.PartyState{PartyID: partyA}))
	require.NoError(t, hub.Deliver(context.Background(), user, &models.PartyState{PartyID: partyB}))
	assert.Len(t, sockA.written, 1)
	assert.Len(t, sockB.written, 1)

	hub.Disconnect(partyA, user, KickedFromPartyError, "kicked")
	assert.Eventually(t, func() bool {
		return sockA.closeCode() == KickedFromPartyError
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, websocket.StatusCode(0), sockB.closeCode())
	assert.True(t, hub.Unregister(connB))
	assert.False(t, hub.Unregister(connA))
}
