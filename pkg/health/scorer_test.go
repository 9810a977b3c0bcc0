package health

import (
	"testing"

	"github.com/meshroute/meshroute/pkg/types"
)

func TestPerfectConditions(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	// 5/5 probes, 10ms latency, 1ms jitter, no loss.
	score := s.Score(10, 0, 1)
	if score < 95 {
		t.Errorf("score = %v, want >= 95 for near-perfect path", score)
	}
	if types.StatusForScore(score) != types.PathStatusUp {
		t.Errorf("status = %v, want up", types.StatusForScore(score))
	}
}

func TestHeavyLossDrivesPathDown(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	// 2/5 probes succeeded: 40% loss, surviving probes look fine.
	score := s.Score(15, 40, 2)
	if score >= 50 {
		t.Errorf("score = %v, want < 50 at 40%% loss", score)
	}
	if types.StatusForScore(score) != types.PathStatusDown {
		t.Errorf("status = %v, want down", types.StatusForScore(score))
	}
}

func TestTotalLossScoresZero(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	score := s.Score(1000, 100, 1000)
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestScoreClamping(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	cases := [][3]float64{
		{0, 0, 0},
		{1e6, 100, 1e6},
		{50, 3, 8},
		{250, 12, 40},
	}
	for _, c := range cases {
		score := s.Score(c[0], c[1], c[2])
		if score < 0 || score > 100 {
			t.Errorf("Score(%v, %v, %v) = %v, outside [0,100]", c[0], c[1], c[2], score)
		}
	}
}

func TestScoreMonotonicity(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	// Worse latency never raises the score.
	prev := s.Score(1, 5, 5)
	for lat := 10.0; lat <= 500; lat += 10 {
		cur := s.Score(lat, 5, 5)
		if cur > prev {
			t.Fatalf("score rose from %v to %v as latency increased to %v", prev, cur, lat)
		}
		prev = cur
	}

	// Worse loss never raises the score.
	prev = s.Score(20, 0, 2)
	for loss := 1.0; loss <= 100; loss++ {
		cur := s.Score(20, loss, 2)
		if cur >= prev && prev > 0 {
			t.Fatalf("score did not fall (%v -> %v) as loss increased to %v", prev, cur, loss)
		}
		prev = cur
	}

	// Worse jitter never raises the score.
	prev = s.Score(20, 0, 1)
	for jit := 2.0; jit <= 100; jit += 2 {
		cur := s.Score(20, 0, jit)
		if cur > prev {
			t.Fatalf("score rose from %v to %v as jitter increased to %v", prev, cur, jit)
		}
		prev = cur
	}
}

func TestHighLatencyDegrades(t *testing.T) {
	s := NewScorer(DefaultThresholds())

	good := s.Score(20, 0, 1)
	bad := s.Score(300, 0, 1)
	if bad >= good {
		t.Errorf("300ms path (%v) should score below 20ms path (%v)", bad, good)
	}
	if bad > 80 {
		t.Errorf("score = %v, 3x threshold latency should not be up", bad)
	}
}

func TestCustomThresholds(t *testing.T) {
	tight := DefaultThresholds()
	tight.MaxLatencyMs = 20

	loose := NewScorer(DefaultThresholds())
	strict := NewScorer(tight)

	lat := 60.0
	if strict.Score(lat, 0, 1) >= loose.Score(lat, 0, 1) {
		t.Error("tighter latency threshold should penalize the same latency harder")
	}
}
