// internal/database/server_events.go
package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/partyhost/internal/models"
)

// ServerEventStore persists server lifecycle events.
type ServerEventStore struct {
	pool *pgxpool.Pool
}

func NewServerEventStore(pool *pgxpool.Pool) *ServerEventStore {
	return &ServerEventStore{pool: pool}
}

// InsertServerEvents writes a batch of events in one transaction.
func (s *ServerEventStore) InsertServerEvents(ctx context.Context, events []models.ServerEvent) error {
	if len(events) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"server_events"},
			[]string{"server_id", "pool_id", "state", "endpoint", "game_session_id", "agent_id", "container_id", "recorded_at"},
			pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
				e := events[i]
				var session any
				if e.GameSessionID != uuid.Nil {
					session = e.GameSessionID
				}
				return []any{
					e.ServerID, e.PoolID, string(e.State), e.Endpoint, session,
					e.AgentID, e.ContainerID, time.UnixMilli(e.Timestamp),
				}, nil
			}),
		)
		return err
	})
}
