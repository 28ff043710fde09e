package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"netmend/internal/model"
)

type staticSource struct {
	state   model.NetworkState
	quality model.NetworkQuality
	metrics model.RecoveryMetrics
	sync    model.SyncState
}

func (s staticSource) State() model.NetworkState       { return s.state }
func (s staticSource) IsOnline() bool                  { return s.state.IsOnline() }
func (s staticSource) Quality() model.NetworkQuality   { return s.quality }
func (s staticSource) Metrics() model.RecoveryMetrics  { return s.metrics }
func (s staticSource) SyncStatus() model.SyncState     { return s.sync }

func TestCollector_Gather(t *testing.T) {
	t.Parallel()

	src := staticSource{
		state:   model.StateDegraded,
		quality: model.NetworkQuality{Score: 42, LatencyMs: 120},
		metrics: model.RecoveryMetrics{
			TotalDisconnections:  3,
			SuccessfulRecoveries: 2,
			FailedRecoveries:     1,
			RequestsQueued:       7,
			RequestsReplayed:     5,
		},
		sync: model.SyncState{PendingCount: 2, FailedCount: 1},
	}

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(src)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP netmend_disconnections_total Connectivity losses observed.
# TYPE netmend_disconnections_total counter
netmend_disconnections_total 3
# HELP netmend_online 1 when the engine considers itself connected.
# TYPE netmend_online gauge
netmend_online 1
# HELP netmend_quality_score Most recent quality score, 0-100.
# TYPE netmend_quality_score gauge
netmend_quality_score 42
# HELP netmend_queue_pending Requests currently awaiting replay.
# TYPE netmend_queue_pending gauge
netmend_queue_pending 2
# HELP netmend_recoveries_total Reconnection outcomes by result.
# TYPE netmend_recoveries_total counter
netmend_recoveries_total{result="failed"} 1
netmend_recoveries_total{result="success"} 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"netmend_disconnections_total",
		"netmend_online",
		"netmend_quality_score",
		"netmend_queue_pending",
		"netmend_recoveries_total",
	)
	if err != nil {
		t.Fatalf("GatherAndCompare: %v", err)
	}
}

func TestCollector_StateSeries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(staticSource{state: model.StateOffline})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "netmend_state" {
			continue
		}
		if len(fam.GetMetric()) != 5 {
			t.Fatalf("state series=%d", len(fam.GetMetric()))
		}
		for _, metric := range fam.GetMetric() {
			want := 0.0
			if metric.GetLabel()[0].GetValue() == "offline" {
				want = 1
			}
			if metric.GetGauge().GetValue() != want {
				t.Fatalf("state %s = %v", metric.GetLabel()[0].GetValue(), metric.GetGauge().GetValue())
			}
		}
		return
	}
	t.Fatal("netmend_state family missing")
}
