package probe

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrProbeLost marks a simulated probe that produced no response.
var ErrProbeLost = errors.New("probe lost")

// SimulatedProber produces synthetic measurements. Used in tests and
// in dev mode where no remote responder exists.
type SimulatedProber struct {
	mu       sync.Mutex
	baseRTT  time.Duration
	jitter   time.Duration
	lossRate float64
	rng      *rand.Rand
}

// NewSimulatedProber returns a prober producing RTTs of baseRTT plus
// up to ±jitter, dropping lossRate (0..1) of probes.
func NewSimulatedProber(baseRTT, jitter time.Duration, lossRate float64) *SimulatedProber {
	return &SimulatedProber{
		baseRTT:  baseRTT,
		jitter:   jitter,
		lossRate: lossRate,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetConditions swaps the simulated path characteristics at runtime.
func (s *SimulatedProber) SetConditions(baseRTT, jitter time.Duration, lossRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseRTT = baseRTT
	s.jitter = jitter
	s.lossRate = lossRate
}

func (s *SimulatedProber) Probe(ctx context.Context, target string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.lossRate {
		return 0, ErrProbeLost
	}

	rtt := s.baseRTT
	if s.jitter > 0 {
		rtt += time.Duration(s.rng.Int63n(int64(2*s.jitter))) - s.jitter
	}
	if rtt < 0 {
		rtt = 0
	}
	return rtt, nil
}
