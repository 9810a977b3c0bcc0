package health

import "math"

// Thresholds tune the composite health score. The defaults weight
// latency 40%, jitter 30% and loss 30%; treat them as configuration,
// not constants.
type Thresholds struct {
	// MaxLatencyMs is the latency at which the latency penalty starts
	// to bite hard; below it the penalty stays near zero.
	MaxLatencyMs float64

	// MaxJitterMs is the jitter counterpart of MaxLatencyMs.
	MaxJitterMs float64

	// Component weights. Should sum to 1.0.
	LatencyWeight float64
	JitterWeight  float64
	LossWeight    float64

	// LossPenaltyFactor scales the loss penalty per percentage point.
	// With the default weight and factor, sustained 40% loss alone
	// drives a path Down.
	LossPenaltyFactor float64
}

// DefaultThresholds returns the documented default weighting.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxLatencyMs:      100,
		MaxJitterMs:       10,
		LatencyWeight:     0.40,
		JitterWeight:      0.30,
		LossWeight:        0.30,
		LossPenaltyFactor: 5.0,
	}
}

// Scorer converts raw measurements into a 0-100 health score.
type Scorer struct {
	thresholds Thresholds
}

// NewScorer creates a scorer with custom thresholds.
func NewScorer(t Thresholds) *Scorer {
	return &Scorer{thresholds: t}
}

// Score computes the composite health score:
//
//	score = 100 - latencyPenalty - jitterPenalty - lossPenalty
//
// clamped to [0,100]. Latency and jitter penalties grow as
// w*100*(1-exp(-(x/max)^2)) - negligible well below the threshold,
// saturating at the full component weight above it. Loss is penalized
// linearly (w * loss% * factor) so heavy loss dominates regardless of
// how good the surviving probes look. Every component is strictly
// increasing in its metric, so a worse measurement always lowers the
// score.
func (s *Scorer) Score(latencyMs, packetLossPct, jitterMs float64) float64 {
	t := s.thresholds

	latencyPenalty := t.LatencyWeight * 100 * expPenalty(latencyMs, t.MaxLatencyMs)
	jitterPenalty := t.JitterWeight * 100 * expPenalty(jitterMs, t.MaxJitterMs)
	lossPenalty := t.LossWeight * packetLossPct * t.LossPenaltyFactor

	score := 100 - latencyPenalty - jitterPenalty - lossPenalty
	return math.Max(0, math.Min(100, score))
}

// expPenalty maps x to (0,1): ~0 for x << max, ~1 for x >> max.
func expPenalty(x, max float64) float64 {
	if x <= 0 {
		return 0
	}
	if max <= 0 {
		return 1
	}
	ratio := x / max
	return 1 - math.Exp(-ratio*ratio)
}
