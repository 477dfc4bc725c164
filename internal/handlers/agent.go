// internal/handlers/agent.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/auth"
	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/sirupsen/logrus"
)

// agentCallback is the body agents post when a server container changes state.
type agentCallback struct {
	AgentID  string    `json:"agentId"`
	Secret   string    `json:"secret"`
	ServerID uuid.UUID `json:"serverId"`
	PoolID   string    `json:"poolId"`
	Endpoint string    `json:"endpoint,omitempty"`
}

// verifyAgent checks the agent secret against its registered argon2id hash.
func verifyAgent(agents *pool.AgentDirectory, cb agentCallback) error {
	info, err := agents.Get(cb.AgentID)
	if err != nil {
		return auth.ErrInvalidAgentSecret
	}
	return auth.VerifySecret(cb.Secret, info.SecretHash)
}

// AgentReadyHandler serves POST /agent/ready: the server is accepting connections at Endpoint.
func AgentReadyHandler(logger *logrus.Logger, registry *pool.Registry, agents *pool.AgentDirectory) http.HandlerFunc {
	return agentCallbackHandler(logger, registry, agents, func(leaf *pool.LeafPool, cb agentCallback) error {
		return leaf.SetReady(cb.ServerID, cb.Endpoint)
	})
}

// AgentShutdownHandler serves POST /agent/shutdown: the server process has exited.
func AgentShutdownHandler(logger *logrus.Logger, registry *pool.Registry, agents *pool.AgentDirectory) http.HandlerFunc {
	return agentCallbackHandler(logger, registry, agents, func(leaf *pool.LeafPool, cb agentCallback) error {
		return leaf.SetShutdown(cb.ServerID)
	})
}

func agentCallbackHandler(logger *logrus.Logger, registry *pool.Registry, agents *pool.AgentDirectory, apply func(*pool.LeafPool, agentCallback) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cb agentCallback
		if err := decodeBody(r, &cb); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		entry := logger.WithFields(logrus.Fields{"agent_id": cb.AgentID, "server_id": cb.ServerID, "pool": cb.PoolID})
		if err := verifyAgent(agents, cb); err != nil {
			entry.WithError(err).Warn("agent callback rejected")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		agents.Seen(cb.AgentID)

		leaf, err := registry.Leaf(cb.PoolID)
		if err != nil {
			writeError(w, err)
			return
		}
		srv, err := leaf.Server(cb.ServerID)
		if err != nil {
			writeError(w, err)
			return
		}
		if srv.AgentID != cb.AgentID {
			err := fmt.Errorf("%w: server %s is on agent %q", pool.ErrNotPlacedOnAgent, cb.ServerID, srv.AgentID)
			entry.WithError(err).Warn("agent callback rejected")
			writeError(w, err)
			return
		}
		if err := apply(leaf, cb); err != nil {
			entry.WithError(err).Warn("agent callback not applied")
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
