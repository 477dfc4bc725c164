// internal/models/server.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ServerState is the lifecycle position of a dedicated server: starting -> ready -> running -> shutdown.
type ServerState string

const (
	ServerStarting ServerState = "starting"
	ServerReady    ServerState = "ready"
	ServerRunning  ServerState = "running"
	ServerShutdown ServerState = "shutdown"
)

// Server is a handle to one allocated dedicated-server instance.
type Server struct {
	ID            uuid.UUID   `json:"id"`
	Endpoint      string      `json:"endpoint,omitempty"`
	PoolID        string      `json:"poolId"`
	State         ServerState `json:"state"`
	GameSessionID uuid.UUID   `json:"gameSessionId,omitempty"`
	AgentID       string      `json:"agentId,omitempty"`
	ContainerID   string      `json:"containerId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// ServerEvent is the record kept for every server lifecycle transition.
type ServerEvent struct {
	ServerID      uuid.UUID   `json:"server_id"`
	PoolID        string      `json:"pool_id"`
	State         ServerState `json:"state"`
	Endpoint      string      `json:"endpoint,omitempty"`
	GameSessionID uuid.UUID   `json:"game_session_id,omitempty"`
	AgentID       string      `json:"agent_id,omitempty"`
	ContainerID   string      `json:"container_id,omitempty"`
	Timestamp     int64       `json:"timestamp"` // epoch millis
}

// Event builds the lifecycle record for s's current state.
func (s Server) Event(at time.Time) ServerEvent {
	return ServerEvent{
		ServerID:      s.ID,
		PoolID:        s.PoolID,
		State:         s.State,
		Endpoint:      s.Endpoint,
		GameSessionID: s.GameSessionID,
		AgentID:       s.AgentID,
		ContainerID:   s.ContainerID,
		Timestamp:     at.UnixMilli(),
	}
}

// GameSessionConfiguration describes one match to host on an allocated server.
type GameSessionConfiguration struct {
	Public       bool            `json:"public"`
	AllowRestart bool            `json:"allowRestart"`
	HostUserID   uuid.UUID       `json:"hostUserId"`
	Teams        *TeamSet        `json:"teams"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

// NewGameSessionConfiguration returns a configuration with an empty team set.
func NewGameSessionConfiguration(hostUserID uuid.UUID) *GameSessionConfiguration {
	return &GameSessionConfiguration{
		HostUserID: hostUserID,
		Teams:      NewTeamSet(),
	}
}
