package metrics

import (
	"testing"
	"time"

	"netmend/internal/model"
)

func TestSummarize_Basic(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	items := []model.Sample{
		{Timestamp: now.Add(-10 * time.Second), LatencyMs: 10, JitterMs: 1, Score: 100},
		{Timestamp: now.Add(-5 * time.Second), LatencyMs: 20, JitterMs: 3, Score: 80},
	}
	s := Summarize(items, now.Add(-1*time.Minute))
	if s.Count != 2 {
		t.Fatalf("count=%d", s.Count)
	}
	if s.AvgLatencyMs != 15 {
		t.Fatalf("avg_latency=%.2f", s.AvgLatencyMs)
	}
	if s.MinLatencyMs != 10 || s.MaxLatencyMs != 20 {
		t.Fatalf("min/max=%.2f/%.2f", s.MinLatencyMs, s.MaxLatencyMs)
	}
	if s.P95LatencyMs != 20 {
		t.Fatalf("p95=%.2f", s.P95LatencyMs)
	}
	if s.AvgScore != 90 {
		t.Fatalf("avg_score=%.2f", s.AvgScore)
	}
}

func TestSummarize_WindowFiltersOldSamples(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	items := []model.Sample{
		{Timestamp: now.Add(-time.Hour), LatencyMs: 500},
		{Timestamp: now.Add(-time.Second), LatencyMs: 10},
	}
	s := Summarize(items, now.Add(-time.Minute))
	if s.Count != 1 {
		t.Fatalf("count=%d", s.Count)
	}
	if s.AvgLatencyMs != 10 {
		t.Fatalf("avg_latency=%.2f", s.AvgLatencyMs)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentile(values, 1); got != 4 {
		t.Fatalf("p100=%v", got)
	}
}
