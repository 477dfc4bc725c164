// internal/cache/redis_test.go
package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventPublisher needs a reachable Redis; set REDIS_ADDR to run it.
func TestEventPublisher(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb, err := Connect(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer rdb.Close()

	queue := "partyhost:test:" + uuid.NewString()
	defer rdb.Del(ctx, queue)

	l := logrus.New()
	l.SetOutput(io.Discard)
	pub := NewEventPublisher(rdb, queue, logrus.NewEntry(l))

	srv := models.Server{ID: uuid.New(), PoolID: "eu", State: models.ServerReady, Endpoint: "10.0.0.1:7777"}
	pub.ServerEvent(ctx, srv)

	raw, err := rdb.LPop(ctx, queue).Result()
	require.NoError(t, err)
	var got models.ServerEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, srv.ID, got.ServerID)
	assert.Equal(t, models.ServerReady, got.State)
	assert.Equal(t, "10.0.0.1:7777", got.Endpoint)
}
