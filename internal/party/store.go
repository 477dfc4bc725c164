// internal/party/store.go
package party

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
)

// Filter narrows an administrative party search. Zero values match everything.
type Filter struct {
	LeaderUserID uuid.UUID
	MinMembers   int
}

// Matches reports whether summary passes the filter.
func (f Filter) Matches(summary models.PartySummary) bool {
	if f.LeaderUserID != uuid.Nil && summary.LeaderUserID != f.LeaderUserID {
		return false
	}
	return summary.MemberCount >= f.MinMembers
}

// Page is one page of search results plus the total number of matches.
type Page struct {
	Items []models.PartySummary `json:"items"`
	Total int                   `json:"total"`
}

// Querier is the read-only search used by operational tooling.
type Querier interface {
	SearchParties(ctx context.Context, filter Filter, skip, size int) (Page, error)
}

// Store keeps the live parties of this process. It only guards its own map;
// each party does its own locking.
type Store struct {
	mu      sync.Mutex
	parties map[uuid.UUID]*Service

	deliverer Deliverer
	observer  Observer
	logger    *logrus.Entry
}

// NewStore returns an empty store whose parties deliver state through deliverer. observer may be nil.
func NewStore(deliverer Deliverer, observer Observer, logger *logrus.Entry) *Store {
	return &Store{
		parties:   make(map[uuid.UUID]*Service),
		deliverer: deliverer,
		observer:  observer,
		logger:    logger,
	}
}

// Create builds, configures and stores a party. The party removes itself once empty.
func (s *Store) Create(ctx context.Context, meta Metadata) (*Service, error) {
	svc := NewService(s.deliverer, s.observer, s.logger)
	if err := svc.SetConfiguration(meta); err != nil {
		return nil, err
	}
	svc.OnEmpty = s.Delete

	s.mu.Lock()
	s.parties[svc.ID()] = svc
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.PartyChanged(ctx, svc.Summary())
	}
	s.logger.WithField("party_id", svc.ID()).Info("party created")
	return svc, nil
}

// Get retrieves a party by id.
func (s *Store) Get(id uuid.UUID) (*Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.parties[id]
	if !ok {
		return nil, ErrPartyNotFound
	}
	return svc, nil
}

// Delete removes a party from the store.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[id]; !ok {
		s.logger.WithField("party_id", id).Warn("attempted to delete non-existent party")
		return
	}
	delete(s.parties, id)
	s.logger.WithField("party_id", id).Info("party deleted")
}

// List returns a copy of the live parties.
func (s *Store) List() []*Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Service, 0, len(s.parties))
	for _, svc := range s.parties {
		out = append(out, svc)
	}
	return out
}

// SearchParties pages through the live parties, newest first.
func (s *Store) SearchParties(ctx context.Context, filter Filter, skip, size int) (Page, error) {
	var matches []models.PartySummary
	// party locks are taken one at a time, never while holding the store lock
	for _, svc := range s.List() {
		summary := svc.Summary()
		if filter.Matches(summary) {
			matches = append(matches, summary)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return Page{Items: paginate(matches, skip, size), Total: len(matches)}, nil
}

func paginate(items []models.PartySummary, skip, size int) []models.PartySummary {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []models.PartySummary{}
	}
	end := len(items)
	if size > 0 && skip+size < end {
		end = skip + size
	}
	return items[skip:end]
}
