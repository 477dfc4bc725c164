// internal/party/errors.go
package party

import "errors"

var (
	// ErrUnknownMember is returned when an operation names a user who isn't currently in the party.
	ErrUnknownMember = errors.New("unknown party member")

	// ErrNotLeader is returned when a leader-only operation is attempted by someone else.
	ErrNotLeader = errors.New("caller is not the party leader")

	// ErrInvalidSettings is returned by UpdateSettings when the update is rejected.
	ErrInvalidSettings = errors.New("invalid party settings")

	// ErrDeliveryFailure wraps any error from the injected Deliverer or RequestHandle.
	ErrDeliveryFailure = errors.New("party state delivery failed")

	ErrPartyNotFound     = errors.New("party not found")
	ErrAlreadyConfigured = errors.New("party already configured")
	ErrInvalidStatus     = errors.New("invalid game finder status")
)
