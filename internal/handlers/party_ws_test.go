// internal/handlers/party_ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Type      string             `json:"type"`
	RequestID string             `json:"requestId"`
	OK        bool               `json:"ok"`
	State     *models.PartyState `json:"state"`
	Error     *errorBody         `json:"error"`
}

func newPartyServer(t *testing.T) (*httptest.Server, *party.Store) {
	t.Helper()
	logger := testLogger()
	store, hub := newStore(logger)
	mux := http.NewServeMux()
	mux.Handle("GET /party/ws/{id}", PartyWSHandler(logger, store, hub))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func dialParty(t *testing.T, ctx context.Context, srv *httptest.Server, partyID, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/party/ws/" + partyID.String()
	header := http.Header{}
	header.Set("Cookie", "auth_token="+userToken(t, userID))
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"party"},
		HTTPHeader:   header,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func readMessage(t *testing.T, ctx context.Context, c *websocket.Conn) wireMessage {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg wireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendRequest(t *testing.T, ctx context.Context, c *websocket.Conn, req map[string]any) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func TestPartyWebSocketFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, store := newPartyServer(t)

	leader, member := uuid.New(), uuid.New()
	svc, err := store.Create(ctx, party.Metadata{LeaderUserID: leader})
	require.NoError(t, err)

	lc := dialParty(t, ctx, srv, svc.ID(), leader)
	msg := readMessage(t, ctx, lc)
	require.Equal(t, "party_state", msg.Type)
	assert.Len(t, msg.State.Members, 1)

	mc := dialParty(t, ctx, srv, svc.ID(), member)
	msg = readMessage(t, ctx, mc)
	require.Equal(t, "party_state", msg.Type)
	assert.Len(t, msg.State.Members, 2)
	msg = readMessage(t, ctx, lc)
	assert.Len(t, msg.State.Members, 2)

	// members cannot change the settings
	sendRequest(t, ctx, mc, map[string]any{"type": "update_settings", "requestId": "1", "settings": map[string]any{"settings": map[string]any{"map": "x"}}})
	msg = readMessage(t, ctx, mc)
	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, "1", msg.RequestID)
	assert.False(t, msg.OK)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "not_leader", msg.Error.Code)

	sendRequest(t, ctx, mc, map[string]any{"type": "get_state", "requestId": "2"})
	msg = readMessage(t, ctx, mc)
	assert.Equal(t, "response", msg.Type)
	assert.True(t, msg.OK)
	require.NotNil(t, msg.State)
	assert.Equal(t, leader, msg.State.Configuration.LeaderUserID)

	sendRequest(t, ctx, mc, map[string]any{"type": "update_status", "requestId": "3", "status": "searching"})
	msg = readMessage(t, ctx, mc)
	assert.True(t, msg.OK)
	msg = readMessage(t, ctx, mc)
	require.Equal(t, "party_state", msg.Type)
	m, ok := msg.State.Member(member)
	require.True(t, ok)
	assert.Equal(t, models.GameFinderSearching, m.Status)
	msg = readMessage(t, ctx, lc)
	assert.Equal(t, "party_state", msg.Type)

	sendRequest(t, ctx, lc, map[string]any{"type": "kick", "requestId": "4", "userId": member})
	msg = readMessage(t, ctx, lc)
	assert.True(t, msg.OK)
	msg = readMessage(t, ctx, lc)
	require.Equal(t, "party_state", msg.Type)
	assert.Len(t, msg.State.Members, 1)

	_, _, err = mc.Read(ctx)
	assert.Equal(t, KickedFromPartyError, websocket.CloseStatus(err))
	assert.False(t, svc.HasMember(member))
}

func TestPartyWebSocketRejects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := newPartyServer(t)

	c := dialParty(t, ctx, srv, uuid.New(), uuid.New())
	_, _, err := c.Read(ctx)
	assert.Equal(t, InvalidPartyIDError, websocket.CloseStatus(err))
}

func TestPartyWebSocketLeaveRemovesEmptyParty(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, store := newPartyServer(t)

	leader := uuid.New()
	svc, err := store.Create(ctx, party.Metadata{LeaderUserID: leader})
	require.NoError(t, err)

	c := dialParty(t, ctx, srv, svc.ID(), leader)
	readMessage(t, ctx, c)
	sendRequest(t, ctx, c, map[string]any{"type": "leave", "requestId": "1"})
	msg := readMessage(t, ctx, c)
	assert.True(t, msg.OK)

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	_, err = store.Get(svc.ID())
	assert.ErrorIs(t, err, party.ErrPartyNotFound)
}

func TestPartyWebSocketSameUserInTwoParties(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, store := newPartyServer(t)

	user := uuid.New()
	first, err := store.Create(ctx, party.Metadata{LeaderUserID: user})
	require.NoError(t, err)
	second, err := store.Create(ctx, party.Metadata{LeaderUserID: user})
	require.NoError(t, err)

	fc := dialParty(t, ctx, srv, first.ID(), user)
	readMessage(t, ctx, fc)
	sc := dialParty(t, ctx, srv, second.ID(), user)
	readMessage(t, ctx, sc)

	// joining the second party leaves the first socket and membership alone
	sendRequest(t, ctx, fc, map[string]any{"type": "get_state", "requestId": "1"})
	msg := readMessage(t, ctx, fc)
	assert.True(t, msg.OK)
	require.NotNil(t, msg.State)
	assert.Equal(t, first.ID(), msg.State.PartyID)
	assert.True(t, first.HasMember(user))
	assert.True(t, second.HasMember(user))

	require.NoError(t, fc.Close(websocket.StatusNormalClosure, "done"))
	assert.Eventually(t, func() bool {
		_, err := store.Get(first.ID())
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
	_, err = store.Get(second.ID())
	assert.NoError(t, err)
	assert.True(t, second.HasMember(user))
}
