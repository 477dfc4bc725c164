// internal/models/team.go
package models

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Group is a set of players that should be kept together inside a team.
type Group struct {
	PlayerIDs []uuid.UUID `json:"playerIds"`
}

// Team is an ordered list of groups. Teams are immutable once built; use NewTeam.
type Team struct {
	Name   string `json:"name"`
	groups []Group
}

// NewTeam copies groups into a new Team so later changes to the argument don't leak in.
func NewTeam(name string, groups ...Group) *Team {
	cp := make([]Group, len(groups))
	for i, g := range groups {
		ids := make([]uuid.UUID, len(g.PlayerIDs))
		copy(ids, g.PlayerIDs)
		cp[i] = Group{PlayerIDs: ids}
	}
	return &Team{Name: name, groups: cp}
}

// Groups returns a copy of the team's groups.
func (t *Team) Groups() []Group {
	out := make([]Group, len(t.groups))
	for i, g := range t.groups {
		ids := make([]uuid.UUID, len(g.PlayerIDs))
		copy(ids, g.PlayerIDs)
		out[i] = Group{PlayerIDs: ids}
	}
	return out
}

// PlayerIDs flattens the team's groups, in group order.
func (t *Team) PlayerIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, g := range t.groups {
		ids = append(ids, g.PlayerIDs...)
	}
	return ids
}

type teamJSON struct {
	Name      string      `json:"name"`
	Groups    []Group     `json:"groups"`
	PlayerIDs []uuid.UUID `json:"playerIds"`
}

func (t *Team) MarshalJSON() ([]byte, error) {
	return json.Marshal(teamJSON{Name: t.Name, Groups: t.groups, PlayerIDs: t.PlayerIDs()})
}

func (t *Team) UnmarshalJSON(b []byte) error {
	var raw teamJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = *NewTeam(raw.Name, raw.Groups...)
	return nil
}

// TeamSet is a list of teams that can be enumerated while another goroutine appends to it.
// Writers build a new slice and publish it with one pointer swap; readers only ever load
// a fully built slice.
type TeamSet struct {
	mu    sync.Mutex // serializes writers only
	teams atomic.Pointer[[]*Team]
}

// NewTeamSet returns a set holding teams.
func NewTeamSet(teams ...*Team) *TeamSet {
	ts := &TeamSet{}
	cp := append([]*Team(nil), teams...)
	ts.teams.Store(&cp)
	return ts
}

// Teams returns the current published list. The slice must not be modified.
func (ts *TeamSet) Teams() []*Team {
	p := ts.teams.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Add appends a team.
func (ts *TeamSet) Add(t *Team) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	cur := ts.Teams()
	next := make([]*Team, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, t)
	ts.teams.Store(&next)
}

// Replace swaps in a whole new list of teams.
func (ts *TeamSet) Replace(teams []*Team) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	cp := append([]*Team(nil), teams...)
	ts.teams.Store(&cp)
}

// PlayerIDs is every player across all teams.
func (ts *TeamSet) PlayerIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, t := range ts.Teams() {
		ids = append(ids, t.PlayerIDs()...)
	}
	return ids
}

func (ts *TeamSet) MarshalJSON() ([]byte, error) {
	teams := ts.Teams()
	if teams == nil {
		teams = []*Team{}
	}
	return json.Marshal(teams)
}

func (ts *TeamSet) UnmarshalJSON(b []byte) error {
	var teams []*Team
	if err := json.Unmarshal(b, &teams); err != nil {
		return err
	}
	ts.Replace(teams)
	return nil
}
