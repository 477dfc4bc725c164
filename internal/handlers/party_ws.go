// internal/handlers/party_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/middleware"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/sirupsen/logrus"
)

// partyRequest is one client message on the party socket.
type partyRequest struct {
	Type      string                `json:"type"`
	RequestID string                `json:"requestId,omitempty"`
	Settings  *party.SettingsUpdate `json:"settings,omitempty"`
	Status    string                `json:"status,omitempty"`
	Data      json.RawMessage       `json:"data,omitempty"`
	UserID    uuid.UUID             `json:"userId,omitempty"`
}

// PartyWSHandler serves GET /party/ws/{id}. The connecting user joins the party and
// every mutation is followed by a broadcast of the new state to all members.
func PartyWSHandler(logger *logrus.Logger, store *party.Store, hub *PartyHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partyID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid party id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"party"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "party" {
			c.Close(BadSubprotocolError, "client must speak the party subprotocol")
			return
		}

		userID, err := authenticateUser(r)
		if errors.Is(err, errInvalidUserID) {
			c.Close(InvalidUserIDError, "invalid user id")
			return
		}
		if err != nil {
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}

		svc, err := store.Get(partyID)
		if err != nil {
			c.Close(InvalidPartyIDError, "party does not exist")
			return
		}

		entry := logger.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID})
		ctx := r.Context()
		pc := &partyConn{userID: userID, partyID: partyID, ws: c}
		hub.Register(pc)
		if err := svc.Join(ctx, userID, nil); err != nil {
			hub.Unregister(pc)
			c.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
		// the party may have emptied and been removed between Get and Join
		if current, err := store.Get(partyID); err != nil || current != svc {
			hub.Unregister(pc)
			_ = svc.Leave(ctx, userID)
			c.Close(InvalidPartyIDError, "party does not exist")
			return
		}
		middleware.LogWebSocketConnect(entry, r.RemoteAddr, r.URL.Path)
		broadcast(ctx, svc, entry)

		readErr := readLoop(ctx, c, svc, hub, pc, entry)

		// a replaced connection leaves membership to its successor; a kicked member is already gone
		if !hub.Unregister(pc) {
			middleware.LogWebSocketDisconnect(entry, r.RemoteAddr, r.URL.Path, readErr)
			return
		}
		if err := svc.Leave(context.WithoutCancel(ctx), userID); err == nil {
			broadcast(context.WithoutCancel(ctx), svc, entry)
		} else if !errors.Is(err, party.ErrUnknownMember) {
			entry.WithError(err).Warn("leave on disconnect failed")
		}
		middleware.LogWebSocketDisconnect(entry, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readLoop handles client requests until the socket closes. It returns the read error
// unless the socket was closed normally.
func readLoop(ctx context.Context, c *websocket.Conn, svc *party.Service, hub *PartyHub, pc *partyConn, logger *logrus.Entry) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var req partyRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			_ = pc.send(ctx, responseMessage{Type: "response", Error: &errorBody{Code: "bad_request", Message: "invalid json"}})
			continue
		}
		if leave := handlePartyRequest(ctx, svc, hub, pc, req, logger); leave {
			c.Close(websocket.StatusNormalClosure, "left party")
			return nil
		}
	}
}

// handlePartyRequest runs one request and reports whether the connection should close.
func handlePartyRequest(ctx context.Context, svc *party.Service, hub *PartyHub, pc *partyConn, req partyRequest, logger *logrus.Entry) bool {
	var err error
	switch req.Type {
	case "get_state":
		err = svc.SendPartyStateAsRequestAnswer(ctx, &wsRequest{id: req.RequestID, conn: pc})
		if err == nil {
			return false
		}
	case "update_settings":
		if req.Settings == nil {
			err = fmt.Errorf("%w: missing settings", party.ErrInvalidSettings)
			break
		}
		err = svc.UpdateSettings(ctx, pc.userID, *req.Settings)
	case "update_status":
		status, perr := models.ParseGameFinderStatus(req.Status)
		if perr != nil {
			err = fmt.Errorf("%w: %w", party.ErrInvalidStatus, perr)
			break
		}
		err = svc.UpdateGameFinderPlayerStatus(ctx, pc.userID, status)
	case "update_data":
		err = svc.UpdatePartyUserData(ctx, pc.userID, req.Data)
	case "promote":
		err = svc.PromoteLeader(ctx, pc.userID, req.UserID)
	case "kick":
		err = svc.KickPlayerByLeader(ctx, pc.userID, req.UserID)
		if err == nil {
			hub.Disconnect(pc.partyID, req.UserID, KickedFromPartyError, "kicked by leader")
		}
	case "leave":
		err = svc.Leave(ctx, pc.userID)
		if err == nil {
			_ = pc.send(ctx, responseMessage{Type: "response", RequestID: req.RequestID, OK: true})
			broadcast(ctx, svc, logger)
			return true
		}
	default:
		_ = pc.send(ctx, responseMessage{Type: "response", RequestID: req.RequestID, Error: &errorBody{
			Code:    "bad_request",
			Message: fmt.Sprintf("unknown request type %q", req.Type),
		}})
		return false
	}

	if err != nil {
		code, _ := errorCode(err)
		logger.WithError(err).WithField("type", req.Type).Debug("party request rejected")
		_ = pc.send(ctx, responseMessage{Type: "response", RequestID: req.RequestID, Error: &errorBody{Code: code, Message: err.Error()}})
		return false
	}
	_ = pc.send(ctx, responseMessage{Type: "response", RequestID: req.RequestID, OK: true})
	broadcast(ctx, svc, logger)
	return false
}

func broadcast(ctx context.Context, svc *party.Service, logger *logrus.Entry) {
	if err := svc.BroadcastPartyState(ctx); err != nil {
		logger.WithError(err).Debug("party broadcast incomplete")
	}
}
