// internal/handlers/party.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/sirupsen/logrus"
)

type createPartyRequest struct {
	Settings   json.RawMessage           `json:"settings,omitempty"`
	GameFinder models.GameFinderSettings `json:"gameFinder"`
}

// CreatePartyHandler creates a party led by the authenticated user. The leader joins
// by connecting to /party/ws/{id}.
func CreatePartyHandler(logger *logrus.Logger, store *party.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, err := authenticateUser(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createPartyRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Settings != nil && !json.Valid(req.Settings) {
			writeError(w, fmt.Errorf("%w: settings are not valid json", party.ErrInvalidSettings))
			return
		}

		svc, err := store.Create(r.Context(), party.Metadata{
			LeaderUserID: userID,
			Settings:     req.Settings,
			GameFinder:   req.GameFinder,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		logger.WithFields(logrus.Fields{"party_id": svc.ID(), "leader": userID}).Info("party created via http")
		writeJSON(w, http.StatusCreated, svc.State())
	}
}
