// Package telemetry exposes engine counters to Prometheus. The engine is
// the source of truth; the collector reads snapshots at scrape time
// instead of double-counting into its own registers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"netmend/internal/model"
)

// Source is the engine surface the collector scrapes.
type Source interface {
	State() model.NetworkState
	IsOnline() bool
	Quality() model.NetworkQuality
	Metrics() model.RecoveryMetrics
	SyncStatus() model.SyncState
}

// Collector implements prometheus.Collector over an engine snapshot.
type Collector struct {
	source Source

	disconnections *prometheus.Desc
	recoveries     *prometheus.Desc
	queued         *prometheus.Desc
	replayed       *prometheus.Desc
	transitions    *prometheus.Desc
	offlineAvg     *prometheus.Desc
	pending        *prometheus.Desc
	syncFailed     *prometheus.Desc
	online         *prometheus.Desc
	state          *prometheus.Desc
	score          *prometheus.Desc
	latency        *prometheus.Desc
}

// NewCollector builds a collector over the given source.
func NewCollector(src Source) *Collector {
	return &Collector{
		source: src,
		disconnections: prometheus.NewDesc("netmend_disconnections_total",
			"Connectivity losses observed.", nil, nil),
		recoveries: prometheus.NewDesc("netmend_recoveries_total",
			"Reconnection outcomes by result.", []string{"result"}, nil),
		queued: prometheus.NewDesc("netmend_requests_queued_total",
			"Requests buffered for replay.", nil, nil),
		replayed: prometheus.NewDesc("netmend_requests_replayed_total",
			"Requests successfully replayed.", nil, nil),
		transitions: prometheus.NewDesc("netmend_network_transitions_total",
			"Transport type changes.", nil, nil),
		offlineAvg: prometheus.NewDesc("netmend_offline_duration_avg_ms",
			"Running average offline episode duration.", nil, nil),
		pending: prometheus.NewDesc("netmend_queue_pending",
			"Requests currently awaiting replay.", nil, nil),
		syncFailed: prometheus.NewDesc("netmend_replay_failures_total",
			"Requests dropped after exhausting retries.", nil, nil),
		online: prometheus.NewDesc("netmend_online",
			"1 when the engine considers itself connected.", nil, nil),
		state: prometheus.NewDesc("netmend_state",
			"1 for the active network state.", []string{"state"}, nil),
		score: prometheus.NewDesc("netmend_quality_score",
			"Most recent quality score, 0-100.", nil, nil),
		latency: prometheus.NewDesc("netmend_quality_latency_ms",
			"Most recent mean probe latency.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.disconnections
	ch <- c.recoveries
	ch <- c.queued
	ch <- c.replayed
	ch <- c.transitions
	ch <- c.offlineAvg
	ch <- c.pending
	ch <- c.syncFailed
	ch <- c.online
	ch <- c.state
	ch <- c.score
	ch <- c.latency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Metrics()
	st := c.source.SyncStatus()
	q := c.source.Quality()
	current := c.source.State()

	ch <- prometheus.MustNewConstMetric(c.disconnections, prometheus.CounterValue, float64(m.TotalDisconnections))
	ch <- prometheus.MustNewConstMetric(c.recoveries, prometheus.CounterValue, float64(m.SuccessfulRecoveries), "success")
	ch <- prometheus.MustNewConstMetric(c.recoveries, prometheus.CounterValue, float64(m.FailedRecoveries), "failed")
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.CounterValue, float64(m.RequestsQueued))
	ch <- prometheus.MustNewConstMetric(c.replayed, prometheus.CounterValue, float64(m.RequestsReplayed))
	ch <- prometheus.MustNewConstMetric(c.transitions, prometheus.CounterValue, float64(m.NetworkTransitions))
	ch <- prometheus.MustNewConstMetric(c.offlineAvg, prometheus.GaugeValue, m.AverageOfflineDurationMs)
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.PendingCount))
	ch <- prometheus.MustNewConstMetric(c.syncFailed, prometheus.CounterValue, float64(st.FailedCount))

	online := 0.0
	if c.source.IsOnline() {
		online = 1
	}
	ch <- prometheus.MustNewConstMetric(c.online, prometheus.GaugeValue, online)

	for _, s := range []model.NetworkState{
		model.StateOnline, model.StateOffline, model.StateReconnecting,
		model.StateDegraded, model.StateTransitioning,
	} {
		v := 0.0
		if s == current {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, string(s))
	}

	ch <- prometheus.MustNewConstMetric(c.score, prometheus.GaugeValue, float64(q.Score))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, q.LatencyMs)
}
