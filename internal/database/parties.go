// internal/database/parties.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/sirupsen/logrus"
)

// PartyRepository mirrors live party summaries into Postgres for operational search.
// It is a party.Observer and a party.Querier.
type PartyRepository struct {
	pool   *pgxpool.Pool
	logger *logrus.Entry
}

func NewPartyRepository(pool *pgxpool.Pool, logger *logrus.Entry) *PartyRepository {
	return &PartyRepository{pool: pool, logger: logger}
}

// UpsertParty writes the summary of a party unless the row already holds a newer one.
// A removed party is never brought back.
func (r *PartyRepository) UpsertParty(ctx context.Context, s models.PartySummary) error {
	q := `
	INSERT INTO parties (id, leader_user_id, member_count, game_session_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		leader_user_id = EXCLUDED.leader_user_id,
		member_count = EXCLUDED.member_count,
		game_session_id = EXCLUDED.game_session_id,
		updated_at = EXCLUDED.updated_at
	WHERE parties.removed_at IS NULL AND parties.updated_at <= EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, q, s.ID, s.LeaderUserID, s.MemberCount, s.GameSessionID, s.CreatedAt, s.UpdatedAt)
	return err
}

// MarkRemoved flags a party as gone; the row is kept for history.
func (r *PartyRepository) MarkRemoved(ctx context.Context, partyID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE parties SET removed_at = NOW() WHERE id = $1`, partyID)
	return err
}

func (r *PartyRepository) PartyChanged(ctx context.Context, summary models.PartySummary) {
	if err := r.UpsertParty(context.WithoutCancel(ctx), summary); err != nil {
		r.logger.WithError(err).WithField("party_id", summary.ID).Error("failed to persist party summary")
	}
}

func (r *PartyRepository) PartyRemoved(ctx context.Context, partyID uuid.UUID) {
	if err := r.MarkRemoved(context.WithoutCancel(ctx), partyID); err != nil {
		r.logger.WithError(err).WithField("party_id", partyID).Error("failed to mark party removed")
	}
}

// SearchParties pages through live parties, newest first.
func (r *PartyRepository) SearchParties(ctx context.Context, filter party.Filter, skip, size int) (party.Page, error) {
	var leader any
	if filter.LeaderUserID != uuid.Nil {
		leader = filter.LeaderUserID
	}
	var limit any
	if size > 0 {
		limit = size
	}
	if skip < 0 {
		skip = 0
	}

	where := `removed_at IS NULL AND ($1::uuid IS NULL OR leader_user_id = $1) AND member_count >= $2`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parties WHERE `+where, leader, filter.MinMembers).Scan(&total); err != nil {
		return party.Page{}, fmt.Errorf("count parties: %w", err)
	}

	q := `
	SELECT id, leader_user_id, member_count, game_session_id, created_at, updated_at
	FROM parties
	WHERE ` + where + `
	ORDER BY created_at DESC
	OFFSET $3 LIMIT $4
	`
	rows, err := r.pool.Query(ctx, q, leader, filter.MinMembers, skip, limit)
	if err != nil {
		return party.Page{}, fmt.Errorf("search parties: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PartySummary, error) {
		var s models.PartySummary
		err := row.Scan(&s.ID, &s.LeaderUserID, &s.MemberCount, &s.GameSessionID, &s.CreatedAt, &s.UpdatedAt)
		return s, err
	})
	if err != nil {
		return party.Page{}, fmt.Errorf("scan parties: %w", err)
	}
	if items == nil {
		items = []models.PartySummary{}
	}
	return party.Page{Items: items, Total: total}, nil
}
