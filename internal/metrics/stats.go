package metrics

import (
	"math"
	"sort"
	"time"

	"netmend/internal/model"
)

// Summary is a basic statistics snapshot over quality samples.
type Summary struct {
	Count        int
	From         time.Time
	To           time.Time
	AvgLatencyMs float64
	P95LatencyMs float64
	MinLatencyMs float64
	MaxLatencyMs float64
	AvgJitterMs  float64
	AvgScore     float64
}

// Summarize computes summary statistics for samples in a time window.
func Summarize(items []model.Sample, since time.Time) Summary {
	filtered := make([]model.Sample, 0, len(items))
	for _, s := range items {
		if s.Timestamp.After(since) || s.Timestamp.Equal(since) {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0}
	}

	values := make([]float64, 0, len(filtered))
	var sumLatency, sumJitter, sumScore float64
	minLatency := math.MaxFloat64
	maxLatency := 0.0
	from := filtered[0].Timestamp
	to := filtered[0].Timestamp

	for _, s := range filtered {
		values = append(values, s.LatencyMs)
		sumLatency += s.LatencyMs
		sumJitter += s.JitterMs
		sumScore += float64(s.Score)
		if s.LatencyMs < minLatency {
			minLatency = s.LatencyMs
		}
		if s.LatencyMs > maxLatency {
			maxLatency = s.LatencyMs
		}
		if s.Timestamp.Before(from) {
			from = s.Timestamp
		}
		if s.Timestamp.After(to) {
			to = s.Timestamp
		}
	}

	sort.Float64s(values)
	p95 := percentile(values, 0.95)
	count := float64(len(filtered))

	return Summary{
		Count:        len(filtered),
		From:         from,
		To:           to,
		AvgLatencyMs: sumLatency / count,
		P95LatencyMs: p95,
		MinLatencyMs: minLatency,
		MaxLatencyMs: maxLatency,
		AvgJitterMs:  sumJitter / count,
		AvgScore:     sumScore / count,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
