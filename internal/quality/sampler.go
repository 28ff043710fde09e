// Package quality measures connection quality against the health endpoint
// and condenses it into a 0-100 score.
package quality

import (
	"context"
	"log/slog"
	"math"

	"netmend/internal/model"
	"netmend/internal/probe"
)

const probeCount = 3

// Score penalties. Latency and bandwidth have a severe and a mild tier,
// jitter a single one.
const (
	latencySevereMs      = 200
	latencyMildMs        = 100
	latencySeverePenalty = 30
	latencyMildPenalty   = 15

	jitterThresholdMs = 50
	jitterPenalty     = 20

	bandwidthSevereMbps    = 1
	bandwidthMildMbps      = 5
	bandwidthSeverePenalty = 30
	bandwidthMildPenalty   = 15
)

// Sampler measures quality with a burst of round-trip probes.
type Sampler struct {
	checker       probe.Checker
	bandwidthHint func() float64 // transport-reported Mbps, <= 0 when unknown
	fallbackMbps  float64
	logger        *slog.Logger
}

// NewSampler builds a sampler. bandwidthHint may be nil when the platform
// exposes no bandwidth estimate; fallbackMbps is used instead.
func NewSampler(checker probe.Checker, bandwidthHint func() float64, fallbackMbps float64, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		checker:       checker,
		bandwidthHint: bandwidthHint,
		fallbackMbps:  fallbackMbps,
		logger:        logger,
	}
}

// Measure runs three probes and scores the result. It never returns an
// error: a failed probe yields the worst-case sentinel so quality
// measurement cannot destabilize the state machine.
func (s *Sampler) Measure(ctx context.Context) model.NetworkQuality {
	rtts := make([]float64, 0, probeCount)
	for i := 0; i < probeCount; i++ {
		rtt, err := s.checker.Check(ctx)
		if err != nil {
			s.logger.Debug("quality probe failed", "checker", s.checker.Name(), "probe", i, "err", err)
			return model.WorstQuality()
		}
		rtts = append(rtts, float64(rtt.Microseconds())/1000.0)
	}

	latency := mean(rtts)
	jitter := stddev(rtts, latency)

	bandwidth := s.fallbackMbps
	if s.bandwidthHint != nil {
		if hint := s.bandwidthHint(); hint > 0 {
			bandwidth = hint
		}
	}

	return model.NetworkQuality{
		LatencyMs:     latency,
		BandwidthMbps: bandwidth,
		PacketLoss:    0,
		JitterMs:      jitter,
		Score:         score(latency, jitter, bandwidth),
	}
}

// CheckerName identifies the underlying checker for sample bookkeeping.
func (s *Sampler) CheckerName() string { return s.checker.Name() }

func score(latencyMs, jitterMs, bandwidthMbps float64) int {
	value := 100

	switch {
	case latencyMs > latencySevereMs:
		value -= latencySeverePenalty
	case latencyMs > latencyMildMs:
		value -= latencyMildPenalty
	}

	if jitterMs > jitterThresholdMs {
		value -= jitterPenalty
	}

	switch {
	case bandwidthMbps < bandwidthSevereMbps:
		value -= bandwidthSeverePenalty
	case bandwidthMbps < bandwidthMildMbps:
		value -= bandwidthMildPenalty
	}

	if value < 0 {
		value = 0
	}
	return value
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
