// internal/party/delivery.go
package party

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
)

// Deliverer pushes a party state to one recipient as a new outbound message.
// Deliver returns once the message is acknowledged or has failed.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID uuid.UUID, state *models.PartyState) error
}

// RequestHandle is a request the recipient already has open; Answer completes it with a state.
type RequestHandle interface {
	RecipientID() uuid.UUID
	Answer(ctx context.Context, state *models.PartyState) error
}

// Observer is told about membership and leadership changes, after the party lock is released.
type Observer interface {
	PartyChanged(ctx context.Context, summary models.PartySummary)
	PartyRemoved(ctx context.Context, partyID uuid.UUID)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, recipientID uuid.UUID, state *models.PartyState) error

func (f DelivererFunc) Deliver(ctx context.Context, recipientID uuid.UUID, state *models.PartyState) error {
	return f(ctx, recipientID, state)
}
