// internal/party/store_test.go
package party

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	changed []models.PartySummary
	removed []uuid.UUID
}

func (o *recordingObserver) PartyChanged(ctx context.Context, summary models.PartySummary) {
	o.changed = append(o.changed, summary)
}

func (o *recordingObserver) PartyRemoved(ctx context.Context, partyID uuid.UUID) {
	o.removed = append(o.removed, partyID)
}

func TestStoreCreateAndAutoRemove(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	store := NewStore(newMockDeliverer(), obs, testLogger())

	leader := uuid.New()
	svc, err := store.Create(ctx, Metadata{LeaderUserID: leader})
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, leader, nil))

	got, err := store.Get(svc.ID())
	require.NoError(t, err)
	assert.Same(t, svc, got)

	require.NoError(t, svc.Leave(ctx, leader))
	_, err = store.Get(svc.ID())
	assert.ErrorIs(t, err, ErrPartyNotFound)
	assert.Equal(t, []uuid.UUID{svc.ID()}, obs.removed)
	assert.NotEmpty(t, obs.changed)
}

func TestStoreCreateRejectsMissingLeader(t *testing.T) {
	store := NewStore(newMockDeliverer(), nil, testLogger())
	_, err := store.Create(context.Background(), Metadata{})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestStoreSearchParties(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMockDeliverer(), nil, testLogger())

	leader := uuid.New()
	for i := 0; i < 5; i++ {
		svc, err := store.Create(ctx, Metadata{LeaderUserID: uuid.New()})
		require.NoError(t, err)
		require.NoError(t, svc.Join(ctx, uuid.New(), nil))
	}
	big, err := store.Create(ctx, Metadata{LeaderUserID: leader})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, big.Join(ctx, uuid.New(), nil))
	}

	page, err := store.SearchParties(ctx, Filter{}, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Len(t, page.Items, 4)

	page, err = store.SearchParties(ctx, Filter{}, 4, 4)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = store.SearchParties(ctx, Filter{MinMembers: 2}, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, big.ID(), page.Items[0].ID)

	page, err = store.SearchParties(ctx, Filter{LeaderUserID: leader}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Empty(t, page.Items)
}
