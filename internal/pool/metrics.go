// internal/pool/metrics.go
package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	descReady = prometheus.NewDesc("partyhost_pool_servers_ready",
		"ready servers not yet assigned to a session", []string{"pool"}, nil)
	descStarting = prometheus.NewDesc("partyhost_pool_servers_starting",
		"servers started but not yet reported ready", []string{"pool"}, nil)
	descRunning = prometheus.NewDesc("partyhost_pool_servers_running",
		"servers assigned to a game session", []string{"pool"}, nil)
	descMax = prometheus.NewDesc("partyhost_pool_servers_max",
		"server capacity of the pool", []string{"pool"}, nil)
	descPending = prometheus.NewDesc("partyhost_pool_pending_requests",
		"server requests waiting for a ready server", []string{"pool"}, nil)
)

// Collector exports the counters of every registered pool, read at scrape time.
type Collector struct {
	registry *Registry
}

func NewCollector(registry *Registry) *Collector {
	return &Collector{registry: registry}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descReady
	ch <- descStarting
	ch <- descRunning
	ch <- descMax
	ch <- descPending
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.registry.All() {
		counters := ReadCounters(p)
		id := p.ID()
		ch <- prometheus.MustNewConstMetric(descReady, prometheus.GaugeValue, float64(counters.Ready), id)
		ch <- prometheus.MustNewConstMetric(descStarting, prometheus.GaugeValue, float64(counters.Starting), id)
		ch <- prometheus.MustNewConstMetric(descRunning, prometheus.GaugeValue, float64(counters.Running), id)
		ch <- prometheus.MustNewConstMetric(descMax, prometheus.GaugeValue, float64(counters.Max), id)
		ch <- prometheus.MustNewConstMetric(descPending, prometheus.GaugeValue, float64(counters.Pending), id)
	}
}
