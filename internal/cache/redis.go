// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list server lifecycle events are pushed to.
const DefaultQueueName = "partyhost:server_events"

// Connect creates a Redis client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// EventPublisher pushes server lifecycle events onto a Redis queue for the historian.
type EventPublisher struct {
	client *redis.Client
	queue  string
	logger *logrus.Entry
}

func NewEventPublisher(client *redis.Client, queue string, logger *logrus.Entry) *EventPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &EventPublisher{client: client, queue: queue, logger: logger}
}

// Publish serializes the event and pushes it to the queue.
func (p *EventPublisher) Publish(ctx context.Context, event models.ServerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal server event: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// ServerEvent records a lifecycle transition. Failures are logged; pools never wait on the historian.
func (p *EventPublisher) ServerEvent(ctx context.Context, server models.Server) {
	if err := p.Publish(context.WithoutCancel(ctx), server.Event(time.Now())); err != nil {
		p.logger.WithError(err).WithField("server_id", server.ID).Warn("dropped server event")
	}
}
