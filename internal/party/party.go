// internal/party/party.go
package party

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
)

// Metadata is the scene/session data a party is created from.
type Metadata struct {
	LeaderUserID uuid.UUID                 `json:"leaderUserId"`
	Settings     json.RawMessage           `json:"settings,omitempty"`
	GameFinder   models.GameFinderSettings `json:"gameFinder"`
	ServerData   map[string]string         `json:"serverData,omitempty"`
}

// SettingsUpdate replaces the leader-controlled part of the configuration.
// A nil GameFinder leaves the game-finder settings as they are.
type SettingsUpdate struct {
	Settings   json.RawMessage            `json:"settings"`
	GameFinder *models.GameFinderSettings `json:"gameFinder,omitempty"`
}

// Service owns one party's mutable state.
//
// Every mutation and both state-send operations run inside mu, so a snapshot
// is always captured (and delivered) between two complete mutations. Methods
// with an Unsafe suffix assume mu is held.
type Service struct {
	mu         sync.Mutex
	party      *models.Party
	configured bool

	// present mirrors the keys of party.Members for lock-free single-key reads.
	present sync.Map

	deliverer Deliverer
	observer  Observer
	logger    *logrus.Entry

	// OnEmpty is called after the last member leaves or is kicked.
	// Typically set by the Store so the party removes itself.
	OnEmpty func(partyID uuid.UUID)
}

// NewService creates a service around a new, unconfigured party. observer may be nil.
func NewService(deliverer Deliverer, observer Observer, logger *logrus.Entry) *Service {
	p := models.NewParty()
	return &Service{
		party:     p,
		deliverer: deliverer,
		observer:  observer,
		logger:    logger.WithField("party_id", p.ID),
	}
}

// ID returns the party id. It never changes so no lock is needed.
func (s *Service) ID() uuid.UUID {
	return s.party.ID
}

// SetConfiguration initializes the party from its creation metadata. It may only be called once.
func (s *Service) SetConfiguration(meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return ErrAlreadyConfigured
	}
	if meta.LeaderUserID == uuid.Nil {
		return fmt.Errorf("%w: missing leader", ErrInvalidSettings)
	}
	s.party.Configuration = models.PartyConfiguration{
		LeaderUserID: meta.LeaderUserID,
		Settings:     meta.Settings,
		GameFinder:   meta.GameFinder,
	}
	for k, v := range meta.ServerData {
		s.party.ServerData[k] = v
	}
	s.configured = true
	s.logger.WithField("leader", meta.LeaderUserID).Info("party configured")
	return nil
}

// Join adds userID as a member. Joining again while already a member keeps the
// existing record and only refreshes the client data.
func (s *Service) Join(ctx context.Context, userID uuid.UUID, data json.RawMessage) error {
	s.mu.Lock()
	if m, ok := s.party.Members[userID]; ok {
		if data != nil {
			m.Data = data
		}
		s.mu.Unlock()
		s.logger.WithField("user_id", userID).Info("member re-established connection")
		return nil
	}
	s.party.Members[userID] = &models.PartyMember{
		UserID:   userID,
		Status:   models.GameFinderNone,
		Data:     data,
		JoinedAt: time.Now(),
	}
	s.present.Store(userID, struct{}{})
	summary := s.party.Summary()
	s.mu.Unlock()

	s.logger.WithField("user_id", userID).Info("member joined")
	s.notifyChanged(ctx, summary)
	return nil
}

// Leave removes userID, e.g. on disconnect. If the leader leaves, the longest-standing
// remaining member becomes leader.
func (s *Service) Leave(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.party.Members[userID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMember, userID)
	}
	s.removeMemberUnsafe(userID)
	s.finishRemoval(ctx)
	s.logger.WithField("user_id", userID).Info("member left")
	return nil
}

// UpdateSettings replaces the party settings. Only the leader may do this.
func (s *Service) UpdateSettings(ctx context.Context, callerID uuid.UUID, update SettingsUpdate) error {
	if update.Settings != nil && !json.Valid(update.Settings) {
		return fmt.Errorf("%w: settings are not valid json", ErrInvalidSettings)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if callerID != s.party.Configuration.LeaderUserID {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, ErrNotLeader)
	}
	s.party.Configuration.Settings = update.Settings
	if update.GameFinder != nil {
		s.party.Configuration.GameFinder = *update.GameFinder
	}
	s.logger.Debug("settings updated")
	return nil
}

// UpdateGameFinderPlayerStatus sets one member's game-finder status.
func (s *Service) UpdateGameFinderPlayerStatus(ctx context.Context, userID uuid.UUID, status models.GameFinderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.party.Members[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, userID)
	}
	m.Status = status
	return nil
}

// UpdatePartyUserData replaces one member's opaque client data.
func (s *Service) UpdatePartyUserData(ctx context.Context, userID uuid.UUID, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.party.Members[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, userID)
	}
	m.Data = data
	return nil
}

// PromoteLeader hands leadership to newLeaderID.
func (s *Service) PromoteLeader(ctx context.Context, callerID, newLeaderID uuid.UUID) error {
	s.mu.Lock()
	if callerID != s.party.Configuration.LeaderUserID {
		s.mu.Unlock()
		return ErrNotLeader
	}
	if _, ok := s.party.Members[newLeaderID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMember, newLeaderID)
	}
	s.party.Configuration.LeaderUserID = newLeaderID
	summary := s.party.Summary()
	s.mu.Unlock()

	s.logger.WithField("leader", newLeaderID).Info("leader promoted")
	s.notifyChanged(ctx, summary)
	return nil
}

// KickPlayerByLeader removes userID from the party. Kicking someone who is no
// longer a member returns ErrUnknownMember.
func (s *Service) KickPlayerByLeader(ctx context.Context, callerID, userID uuid.UUID) error {
	s.mu.Lock()
	if callerID != s.party.Configuration.LeaderUserID {
		s.mu.Unlock()
		return ErrNotLeader
	}
	if _, ok := s.party.Members[userID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMember, userID)
	}
	s.removeMemberUnsafe(userID)
	s.finishRemoval(ctx)
	s.logger.WithFields(logrus.Fields{"user_id": userID, "by": callerID}).Info("member kicked")
	return nil
}

// SendPartyState captures the party state and delivers it to recipientID as a new message.
// The party lock is held until delivery completes or fails.
func (s *Service) SendPartyState(ctx context.Context, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.party.Members[recipientID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, recipientID)
	}
	state := s.party.Snapshot()
	if err := s.deliverer.Deliver(ctx, recipientID, state); err != nil {
		s.logger.WithError(err).WithField("recipient", recipientID).Warn("party state delivery failed")
		return fmt.Errorf("%w: recipient %s: %w", ErrDeliveryFailure, recipientID, err)
	}
	return nil
}

// SendPartyStateAsRequestAnswer answers an open request with the party state.
// Prefer this over SendPartyState when the recipient asked for the state.
func (s *Service) SendPartyStateAsRequestAnswer(ctx context.Context, req RequestHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.party.Members[req.RecipientID()]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, req.RecipientID())
	}
	state := s.party.Snapshot()
	if err := req.Answer(ctx, state); err != nil {
		s.logger.WithError(err).WithField("recipient", req.RecipientID()).Warn("party state answer failed")
		return fmt.Errorf("%w: recipient %s: %w", ErrDeliveryFailure, req.RecipientID(), err)
	}
	return nil
}

// BroadcastPartyState delivers one snapshot to every member. Failures for individual
// recipients are collected; delivery to the others still happens.
func (s *Service) BroadcastPartyState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.party.Snapshot()
	var errs []error
	for _, m := range state.Members {
		if err := s.deliverer.Deliver(ctx, m.UserID, state); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", m.UserID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, errors.Join(errs...))
	}
	return nil
}

// State returns a snapshot without delivering it.
func (s *Service) State() *models.PartyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.party.Snapshot()
}

// Summary returns the admin summary of the party.
func (s *Service) Summary() models.PartySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.party.Summary()
}

// HasMember reports whether userID is currently a member. It does not take the party lock.
func (s *Service) HasMember(userID uuid.UUID) bool {
	_, ok := s.present.Load(userID)
	return ok
}

// IsLeader reports whether userID currently leads the party.
func (s *Service) IsLeader(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.party.Configuration.LeaderUserID == userID
}

// SetServerData writes one bookkeeping key. Keys are owned by whichever subsystem writes them.
func (s *Service) SetServerData(ctx context.Context, key, value string) {
	s.mu.Lock()
	if value == "" {
		delete(s.party.ServerData, key)
	} else {
		s.party.ServerData[key] = value
	}
	summary := s.party.Summary()
	s.mu.Unlock()
	s.notifyChanged(ctx, summary)
}

// ReserveServerData sets key to value only if key is unset, and reports whether it did.
func (s *Service) ReserveServerData(ctx context.Context, key, value string) bool {
	s.mu.Lock()
	if _, ok := s.party.ServerData[key]; ok || value == "" {
		s.mu.Unlock()
		return false
	}
	s.party.ServerData[key] = value
	summary := s.party.Summary()
	s.mu.Unlock()
	s.notifyChanged(ctx, summary)
	return true
}

// ServerData reads one bookkeeping key.
func (s *Service) ServerData(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.party.ServerData[key]
	return v, ok
}

// removeMemberUnsafe deletes userID and reassigns leadership if needed. Assumes mu is held.
func (s *Service) removeMemberUnsafe(userID uuid.UUID) {
	delete(s.party.Members, userID)
	s.present.Delete(userID)

	if s.party.Configuration.LeaderUserID != userID || len(s.party.Members) == 0 {
		return
	}
	var next *models.PartyMember
	for _, m := range s.party.Members {
		if next == nil || m.JoinedAt.Before(next.JoinedAt) {
			next = m
		}
	}
	s.party.Configuration.LeaderUserID = next.UserID
	s.logger.WithField("leader", next.UserID).Info("leader left, leadership reassigned")
}

// finishRemoval releases mu and runs the observer/OnEmpty callbacks outside the lock.
func (s *Service) finishRemoval(ctx context.Context) {
	empty := len(s.party.Members) == 0
	summary := s.party.Summary()
	onEmpty := s.OnEmpty
	s.mu.Unlock()

	if empty {
		if s.observer != nil {
			s.observer.PartyRemoved(ctx, s.party.ID)
		}
		if onEmpty != nil {
			s.logger.Info("party is empty, triggering OnEmpty")
			onEmpty(s.party.ID)
		}
		return
	}
	s.notifyChanged(ctx, summary)
}

func (s *Service) notifyChanged(ctx context.Context, summary models.PartySummary) {
	if s.observer != nil {
		s.observer.PartyChanged(ctx, summary)
	}
}
