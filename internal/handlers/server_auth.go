// internal/handlers/server_auth.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/partyhost/internal/auth"
	"github.com/sirupsen/logrus"
)

type serverAuthRequest struct {
	Token string `json:"token"`
}

// ServerAuthHandler serves POST /server/auth. A dedicated server exchanges the token it was
// started with for its principal.
func ServerAuthHandler(logger *logrus.Logger, authenticator auth.ServerAuthenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req serverAuthRequest
		if err := decodeBody(r, &req); err != nil || req.Token == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		principal, err := authenticator.Authenticate(r.Context(), req.Token)
		if err != nil {
			logger.WithError(err).Debug("dedicated server auth failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, principal)
	}
}
