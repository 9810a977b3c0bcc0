package probe

import (
	"context"
	"math"
	"time"
)

// Result aggregates one round of probes against a single target.
type Result struct {
	// LatencyMs is the mean RTT of successful probes. When every probe
	// fails it is set to the sentinel maximum (the probe timeout).
	LatencyMs float64

	// JitterMs is the standard deviation of RTT across successful
	// probes.
	JitterMs float64

	// PacketLossPct is 100 * failed / sent.
	PacketLossPct float64

	ProbesSent     int
	ProbesReceived int
}

// RoundConfig controls one measurement round.
type RoundConfig struct {
	Count   int           // probes per round
	Timeout time.Duration // per-probe response timeout
	Gap     time.Duration // delay between consecutive probes
}

// DefaultRoundConfig matches the monitor defaults: 5 probes, 1s
// timeout, 200ms apart.
func DefaultRoundConfig() RoundConfig {
	return RoundConfig{
		Count:   5,
		Timeout: time.Second,
		Gap:     200 * time.Millisecond,
	}
}

// Run executes a round of probes and aggregates the outcomes. Probe
// failures are data (loss), never an error; the only error returned is
// context cancellation between probes.
func Run(ctx context.Context, p Prober, target string, cfg RoundConfig) (Result, error) {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}

	rtts := make([]float64, 0, cfg.Count)
	sent := 0

	for i := 0; i < cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			if sent == 0 {
				return Result{}, err
			}
			break
		}
		if i > 0 && cfg.Gap > 0 {
			select {
			case <-time.After(cfg.Gap):
			case <-ctx.Done():
				return aggregate(rtts, sent, cfg), nil
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		rtt, err := p.Probe(probeCtx, target)
		cancel()
		sent++

		if err == nil {
			rtts = append(rtts, float64(rtt)/float64(time.Millisecond))
		}
	}

	return aggregate(rtts, sent, cfg), nil
}

func aggregate(rtts []float64, sent int, cfg RoundConfig) Result {
	received := len(rtts)
	res := Result{
		ProbesSent:     sent,
		ProbesReceived: received,
	}
	if sent > 0 {
		res.PacketLossPct = 100 * float64(sent-received) / float64(sent)
	}

	if received == 0 {
		// Dead path: report the worst observable latency.
		res.LatencyMs = float64(cfg.Timeout) / float64(time.Millisecond)
		res.JitterMs = float64(cfg.Timeout) / float64(time.Millisecond)
		res.PacketLossPct = 100
		return res
	}

	var sum float64
	for _, r := range rtts {
		sum += r
	}
	res.LatencyMs = sum / float64(received)

	var variance float64
	for _, r := range rtts {
		d := r - res.LatencyMs
		variance += d * d
	}
	res.JitterMs = math.Sqrt(variance / float64(received))

	return res
}
