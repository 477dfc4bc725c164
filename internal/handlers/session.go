// internal/handlers/session.go
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/jason-s-yu/partyhost/internal/session"
	"github.com/sirupsen/logrus"
)

type startSessionRequest struct {
	PartyID       uuid.UUID                        `json:"partyId"`
	Configuration *models.GameSessionConfiguration `json:"configuration,omitempty"`
}

type endSessionRequest struct {
	PartyID   uuid.UUID `json:"partyId"`
	SessionID uuid.UUID `json:"sessionId"`
}

// StartSessionHandler serves POST /session/start. Only the party leader may start a session;
// the session id is reserved in the party's server data, so concurrent starts for one party
// allocate at most one server, and broadcast to the members once the server is up.
func StartSessionHandler(logger *logrus.Logger, store *party.Store, sessions *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateUser(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req startSessionRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		svc, err := store.Get(req.PartyID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !svc.IsLeader(userID) {
			writeError(w, party.ErrNotLeader)
			return
		}
		cfg := req.Configuration
		if cfg == nil {
			cfg = models.NewGameSessionConfiguration(userID)
		}
		if cfg.HostUserID == uuid.Nil {
			cfg.HostUserID = userID
		}

		// the session id is claimed on the party before a server is requested
		sessionID, _ := uuid.NewV7()
		if !svc.ReserveServerData(r.Context(), models.ServerDataGameSessionID, sessionID.String()) {
			id, _ := svc.ServerData(models.ServerDataGameSessionID)
			writeError(w, fmt.Errorf("%w: %s", session.ErrSessionExists, id))
			return
		}
		gs, err := sessions.Start(r.Context(), sessionID, cfg)
		if err != nil {
			svc.SetServerData(context.WithoutCancel(r.Context()), models.ServerDataGameSessionID, "")
			logger.WithError(err).WithField("party_id", req.PartyID).Warn("game session start failed")
			writeError(w, err)
			return
		}

		broadcast(r.Context(), svc, logger.WithField("party_id", svc.ID()))
		writeJSON(w, http.StatusCreated, gs)
	}
}

// EndSessionHandler serves POST /session/end. The server goes back to its pool and the party,
// if given, forgets the session.
func EndSessionHandler(logger *logrus.Logger, store *party.Store, sessions *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticateUser(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req endSessionRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		var svc *party.Service
		if req.PartyID != uuid.Nil {
			if svc, err = store.Get(req.PartyID); err != nil {
				writeError(w, err)
				return
			}
			if !svc.IsLeader(userID) {
				writeError(w, party.ErrNotLeader)
				return
			}
			if req.SessionID == uuid.Nil {
				id, _ := svc.ServerData(models.ServerDataGameSessionID)
				req.SessionID, _ = uuid.Parse(id)
			}
		} else {
			gs, err := sessions.Get(req.SessionID)
			if err != nil {
				writeError(w, err)
				return
			}
			if gs.Configuration.HostUserID != userID {
				writeError(w, party.ErrNotLeader)
				return
			}
		}

		if err := sessions.End(r.Context(), req.SessionID); err != nil {
			logger.WithError(err).WithField("session_id", req.SessionID).Warn("game session end failed")
			writeError(w, err)
			return
		}
		if svc != nil {
			svc.SetServerData(r.Context(), models.ServerDataGameSessionID, "")
			broadcast(r.Context(), svc, logger.WithField("party_id", svc.ID()))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
