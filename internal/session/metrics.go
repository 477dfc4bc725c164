// internal/session/metrics.go
package session

import (
	"errors"
	"time"

	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partyhost_session_starts_total",
		Help: "game session start attempts by result",
	}, []string{"result"})

	metricsStartSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "partyhost_session_start_seconds",
		Help:    "time spent waiting for a server",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
	})
)

func observeStart(err error, elapsed time.Duration) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, pool.ErrNoCapacityAvailable):
		result = "no_capacity"
	default:
		result = "error"
	}
	metricsStarts.With(prometheus.Labels{"result": result}).Inc()
	metricsStartSeconds.Observe(elapsed.Seconds())
}
