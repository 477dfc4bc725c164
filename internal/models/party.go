// internal/models/party.go
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GameFinderStatus is a member's position in the game-finding flow.
type GameFinderStatus string

const (
	GameFinderNone      GameFinderStatus = "none"
	GameFinderSearching GameFinderStatus = "searching"
	GameFinderFound     GameFinderStatus = "found"
)

// Valid reports whether s is one of the known statuses.
func (s GameFinderStatus) Valid() bool {
	switch s {
	case GameFinderNone, GameFinderSearching, GameFinderFound:
		return true
	}
	return false
}

// ParseGameFinderStatus maps a wire string onto a GameFinderStatus.
func ParseGameFinderStatus(s string) (GameFinderStatus, error) {
	status := GameFinderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown game finder status %q", s)
	}
	return status, nil
}

// GameFinderSettings holds the party-level options used when the party searches for a game.
type GameFinderSettings struct {
	Mode          string          `json:"mode,omitempty"`
	Region        string          `json:"region,omitempty"`
	MaxPartySize  int             `json:"maxPartySize,omitempty"`
	CustomOptions json.RawMessage `json:"customOptions,omitempty"`
}

// PartyConfiguration is the leader plus the settings shared by the whole party.
type PartyConfiguration struct {
	LeaderUserID uuid.UUID          `json:"leaderUserId"`
	Settings     json.RawMessage    `json:"settings,omitempty"`
	GameFinder   GameFinderSettings `json:"gameFinder"`
}

// Clone returns a deep copy; the raw blobs are copied so callers can't alias party state.
func (c PartyConfiguration) Clone() PartyConfiguration {
	out := c
	out.Settings = cloneRaw(c.Settings)
	out.GameFinder.CustomOptions = cloneRaw(c.GameFinder.CustomOptions)
	return out
}

// PartyMember is one user's membership record within a party.
type PartyMember struct {
	UserID   uuid.UUID        `json:"userId"`
	Status   GameFinderStatus `json:"status"`
	Data     json.RawMessage  `json:"data,omitempty"`
	JoinedAt time.Time        `json:"joinedAt"`
}

// Clone returns a deep copy of the member.
func (m PartyMember) Clone() PartyMember {
	out := m
	out.Data = cloneRaw(m.Data)
	return out
}

// Party is a persistent group of players coordinating before and through matchmaking.
//
// Members and Configuration are owned by the party service; nothing else should write them.
type Party struct {
	ID            uuid.UUID                  `json:"id"`
	Configuration PartyConfiguration         `json:"configuration"`
	Members       map[uuid.UUID]*PartyMember `json:"-"`
	ServerData    map[string]string          `json:"serverData,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// NewParty returns an empty party with a fresh id.
func NewParty() *Party {
	id, _ := uuid.NewV7()
	return &Party{
		ID:         id,
		Members:    make(map[uuid.UUID]*PartyMember),
		ServerData: make(map[string]string),
		CreatedAt:  time.Now(),
	}
}

// PartyState is a coherent snapshot of a party at one instant.
type PartyState struct {
	PartyID       uuid.UUID          `json:"partyId"`
	Configuration PartyConfiguration `json:"configuration"`
	Members       []PartyMember      `json:"members"`
	ServerData    map[string]string  `json:"serverData,omitempty"`
	CapturedAt    time.Time          `json:"capturedAt"`
}

// Member returns the snapshot entry for userID.
func (s *PartyState) Member(userID uuid.UUID) (PartyMember, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return PartyMember{}, false
}

// Snapshot copies the party into a PartyState. The caller must hold whatever lock guards p.
func (p *Party) Snapshot() *PartyState {
	members := make([]PartyMember, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, m.Clone())
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID.String() < members[j].UserID.String()
	})
	serverData := make(map[string]string, len(p.ServerData))
	for k, v := range p.ServerData {
		serverData[k] = v
	}
	return &PartyState{
		PartyID:       p.ID,
		Configuration: p.Configuration.Clone(),
		Members:       members,
		ServerData:    serverData,
		CapturedAt:    time.Now(),
	}
}

// PartySummary is the row returned by the administrative party search.
type PartySummary struct {
	ID            uuid.UUID `json:"id"`
	LeaderUserID  uuid.UUID `json:"leaderUserId"`
	MemberCount   int       `json:"memberCount"`
	GameSessionID string    `json:"gameSessionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ServerDataGameSessionID is the ServerData key linking a party to its current game session.
const ServerDataGameSessionID = "gameSessionId"

// Summary builds the admin summary of the party. The caller must hold whatever lock guards p.
func (p *Party) Summary() PartySummary {
	return PartySummary{
		ID:            p.ID,
		LeaderUserID:  p.Configuration.LeaderUserID,
		MemberCount:   len(p.Members),
		GameSessionID: p.ServerData[ServerDataGameSessionID],
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
