// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Source yields raw queued event payloads. Pop returns (nil, nil) when nothing arrived within wait.
type Source interface {
	Pop(ctx context.Context, wait time.Duration) ([]byte, error)
}

// Store persists a batch of events.
type Store interface {
	InsertServerEvents(ctx context.Context, events []models.ServerEvent) error
}

// RedisSource pops from a Redis list with BLPOP.
type RedisSource struct {
	Client *redis.Client
	Queue  string
}

func (s RedisSource) Pop(ctx context.Context, wait time.Duration) ([]byte, error) {
	res, err := s.Client.BLPop(ctx, wait, s.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] is the queue name and res[1] the payload
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Service drains server lifecycle events from a queue into the database in batches.
type Service struct {
	source     Source
	store      Store
	batchSize  int
	flushDelay time.Duration
	popWait    time.Duration
	logger     *logrus.Entry

	batch     []models.ServerEvent
	lastFlush time.Time
}

func NewService(source Source, store Store, batchSize int, flushDelay time.Duration, logger *logrus.Entry) *Service {
	return &Service{
		source:     source,
		store:      store,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		popWait:    time.Second,
		logger:     logger,
		batch:      make([]models.ServerEvent, 0, batchSize),
	}
}

// Run consumes until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("historian started")
	s.lastFlush = time.Now()
	for {
		if ctx.Err() != nil {
			s.flush(context.WithoutCancel(ctx))
			s.logger.Info("historian stopped")
			return nil
		}

		payload, err := s.source.Pop(ctx, s.popWait)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.WithError(err).Error("pop failed")
			time.Sleep(s.popWait)
		case payload != nil:
			var event models.ServerEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				s.logger.WithError(err).Warn("invalid server event")
				break
			}
			s.batch = append(s.batch, event)
		}

		if len(s.batch) >= s.batchSize || time.Since(s.lastFlush) >= s.flushDelay {
			s.flush(ctx)
		}
	}
}

// flush writes the pending batch. A failed batch is kept and retried on the next flush.
func (s *Service) flush(ctx context.Context) {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return
	}
	if err := s.store.InsertServerEvents(ctx, s.batch); err != nil {
		s.logger.WithError(err).WithField("events", len(s.batch)).Error("failed to flush server events")
		return
	}
	s.logger.WithField("events", len(s.batch)).Debug("flushed server events")
	s.batch = s.batch[:0]
}
