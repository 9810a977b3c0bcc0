package routing

import (
	"github.com/meshroute/meshroute/pkg/types"
)

// Component normalisation constants. Each metric maps onto a 0-100
// scale before weighting: latency hits 0 at 200ms, jitter at 50ms,
// bandwidth saturates at 1Gbps and cost at $0.20/GB.
const (
	latencyFloorMs   = 200.0
	jitterFloorMs    = 50.0
	bandwidthCapMbps = 1000.0
	costFactor       = 500.0
)

func latencyScore(latencyMs float64) float64 {
	return (latencyFloorMs - min(latencyMs, latencyFloorMs)) / 2.0
}

func jitterScore(jitterMs float64) float64 {
	return (jitterFloorMs - min(jitterMs, jitterFloorMs)) * 2.0
}

func lossScore(lossPct float64) float64 {
	return 100.0 - lossPct
}

func bandwidthScore(bandwidthMbps float64) float64 {
	return min(bandwidthMbps/bandwidthCapMbps*100.0, 100.0)
}

func costScore(costPerGB float64) float64 {
	s := 100.0 - costPerGB*costFactor
	return max(0, min(100, s))
}

// scorePath combines live health metrics with static path attributes
// into a single 0-100 preference score under the given weights.
func scorePath(h types.PathHealth, path types.Path, w types.ScoringWeights) float64 {
	return w.Latency*latencyScore(h.LatencyMs) +
		w.Jitter*jitterScore(h.JitterMs) +
		w.Loss*lossScore(h.PacketLossPct) +
		w.Bandwidth*bandwidthScore(path.BandwidthMbps) +
		w.Cost*costScore(path.CostPerGB)
}
