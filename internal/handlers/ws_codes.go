// internal/handlers/ws_codes.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/partyhost/internal/auth"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/jason-s-yu/partyhost/internal/session"
)

// Custom WebSocket close codes used by the party handler.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Provided auth token was invalid or expired.
	InvalidUserIDError    websocket.StatusCode = 3002 // User ID derived from token was malformed.
	InvalidPartyIDError   websocket.StatusCode = 3003 // Target party does not exist.
	KickedFromPartyError  websocket.StatusCode = 3004 // The leader removed this member.
)

// errorCode maps a domain error to the code sent to clients and its HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, party.ErrNotLeader):
		return "not_leader", http.StatusForbidden
	case errors.Is(err, party.ErrUnknownMember):
		return "unknown_member", http.StatusNotFound
	case errors.Is(err, party.ErrInvalidSettings):
		return "invalid_settings", http.StatusBadRequest
	case errors.Is(err, party.ErrInvalidStatus):
		return "invalid_status", http.StatusBadRequest
	case errors.Is(err, party.ErrPartyNotFound):
		return "party_not_found", http.StatusNotFound
	case errors.Is(err, party.ErrDeliveryFailure):
		return "delivery_failure", http.StatusBadGateway
	case errors.Is(err, pool.ErrNoCapacityAvailable):
		return "no_capacity_available", http.StatusServiceUnavailable
	case errors.Is(err, pool.ErrStaleConfiguration):
		return "stale_configuration", http.StatusConflict
	case errors.Is(err, pool.ErrNotPlacedOnAgent):
		return "server_not_placed", http.StatusForbidden
	case errors.Is(err, pool.ErrUnknownServer):
		return "unknown_server", http.StatusNotFound
	case errors.Is(err, pool.ErrUnknownPool):
		return "unknown_pool", http.StatusNotFound
	case errors.Is(err, pool.ErrUnknownAgent):
		return "unknown_agent", http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists):
		return "session_exists", http.StatusConflict
	case errors.Is(err, session.ErrUnknownSession):
		return "unknown_session", http.StatusNotFound
	case errors.Is(err, session.ErrSessionStartFailed):
		return "session_start_failed", http.StatusBadGateway
	case errors.Is(err, auth.ErrInvalidServerToken), errors.Is(err, auth.ErrInvalidAgentSecret):
		return "unauthorized", http.StatusUnauthorized
	default:
		return "internal", http.StatusInternalServerError
	}
}
