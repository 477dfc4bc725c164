// internal/handlers/party_hub.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned when a party state is addressed to a user with no open socket.
var ErrNotConnected = errors.New("recipient not connected")

const writeTimeout = 5 * time.Second

// wsWriter is the part of *websocket.Conn the hub needs.
type wsWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// partyConn is one user's socket on one party.
type partyConn struct {
	userID  uuid.UUID
	partyID uuid.UUID
	ws      wsWriter
}

// send writes one JSON message. Writes on a websocket.Conn may run concurrently.
func (pc *partyConn) send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return pc.ws.Write(ctx, websocket.MessageText, data)
}

// hubKey identifies one user's socket on one party. A user may be in several parties at once.
type hubKey struct {
	partyID uuid.UUID
	userID  uuid.UUID
}

func (pc *partyConn) key() hubKey { return hubKey{partyID: pc.partyID, userID: pc.userID} }

// PartyHub routes party snapshots to the members' websockets. It implements party.Deliverer.
type PartyHub struct {
	mu     sync.RWMutex
	conns  map[hubKey]*partyConn
	logger *logrus.Entry
}

func NewPartyHub(logger *logrus.Entry) *PartyHub {
	return &PartyHub{
		conns:  make(map[hubKey]*partyConn),
		logger: logger,
	}
}

// Register makes pc the user's current connection on its party. An older connection of
// the same user to the same party is closed; sockets on other parties are untouched.
func (h *PartyHub) Register(pc *partyConn) {
	h.mu.Lock()
	old := h.conns[pc.key()]
	h.conns[pc.key()] = pc
	h.mu.Unlock()

	if old != nil && old != pc {
		go old.ws.Close(websocket.StatusPolicyViolation, "connection replaced")
	}
}

// Unregister removes pc if it is still the user's current connection on its party and
// reports whether it was.
func (h *PartyHub) Unregister(pc *partyConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[pc.key()] != pc {
		return false
	}
	delete(h.conns, pc.key())
	return true
}

// Disconnect closes the user's socket on partyID, e.g. after a kick. The close handshake
// completes in the background.
func (h *PartyHub) Disconnect(partyID, userID uuid.UUID, code websocket.StatusCode, reason string) {
	k := hubKey{partyID: partyID, userID: userID}
	h.mu.Lock()
	pc := h.conns[k]
	if pc == nil {
		h.mu.Unlock()
		return
	}
	delete(h.conns, k)
	h.mu.Unlock()
	go pc.ws.Close(code, reason)
}

func (h *PartyHub) lookup(partyID, userID uuid.UUID) (*partyConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pc, ok := h.conns[hubKey{partyID: partyID, userID: userID}]
	return pc, ok
}

// Deliver writes state to the recipient's socket on state's party and returns once the
// write completed or failed.
func (h *PartyHub) Deliver(ctx context.Context, recipientID uuid.UUID, state *models.PartyState) error {
	pc, ok := h.lookup(state.PartyID, recipientID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, recipientID)
	}
	if err := pc.send(ctx, stateMessage{Type: "party_state", State: state}); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"user_id": recipientID, "party_id": state.PartyID}).Warn("party state write failed")
		return err
	}
	return nil
}

type stateMessage struct {
	Type  string             `json:"type"`
	State *models.PartyState `json:"state"`
}

// responseMessage answers one client request.
type responseMessage struct {
	Type      string             `json:"type"`
	RequestID string             `json:"requestId,omitempty"`
	OK        bool               `json:"ok"`
	State     *models.PartyState `json:"state,omitempty"`
	Error     *errorBody         `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsRequest is an open client request that can be answered with a party state.
// It implements party.RequestHandle.
type wsRequest struct {
	id   string
	conn *partyConn
}

func (r *wsRequest) RecipientID() uuid.UUID { return r.conn.userID }

func (r *wsRequest) Answer(ctx context.Context, state *models.PartyState) error {
	return r.conn.send(ctx, responseMessage{Type: "response", RequestID: r.id, OK: true, State: state})
}
