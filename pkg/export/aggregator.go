package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshroute/meshroute/pkg/types"
)

// Period is a named aggregation window ending now.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Duration maps a period onto its window length.
func (p Period) Duration() (time.Duration, error) {
	switch p {
	case PeriodHour:
		return time.Hour, nil
	case PeriodDay:
		return 24 * time.Hour, nil
	case PeriodWeek:
		return 7 * 24 * time.Hour, nil
	case PeriodMonth:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown aggregation period %q", string(p))
	}
}

// AggregatedMetrics summarises one path's persisted health over a
// window.
type AggregatedMetrics struct {
	PathID        types.PathID `json:"path_id"`
	Period        string       `json:"period"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	SampleCount   int          `json:"sample_count"`
	LatencyAvg    float64      `json:"latency_avg_ms"`
	LatencyMin    float64      `json:"latency_min_ms"`
	LatencyMax    float64      `json:"latency_max_ms"`
	LatencyP95    float64      `json:"latency_p95_ms"`
	PacketLossAvg float64      `json:"packet_loss_avg_pct"`
	PacketLossMax float64      `json:"packet_loss_max_pct"`
	JitterAvg     float64      `json:"jitter_avg_ms"`
	JitterMax     float64      `json:"jitter_max_ms"`
	ScoreAvg      float64      `json:"health_score_avg"`
	ScoreMin      float64      `json:"health_score_min"`
	UptimePct     float64      `json:"uptime_pct"`
}

// HistorySource serves persisted health snapshots. Implemented by the
// store.
type HistorySource interface {
	PathHealthRange(pathID types.PathID, since, until time.Time) ([]types.PathHealth, error)
}

// Aggregator computes statistical summaries over persisted health
// history.
type Aggregator struct {
	history HistorySource
	clk     clock.Clock
}

// NewAggregator creates an aggregator over a history source.
func NewAggregator(history HistorySource, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.New()
	}
	return &Aggregator{history: history, clk: clk}
}

// Aggregate summarises one path over a named period ending now.
func (a *Aggregator) Aggregate(pathID types.PathID, period Period) (AggregatedMetrics, error) {
	d, err := period.Duration()
	if err != nil {
		return AggregatedMetrics{}, err
	}
	end := a.clk.Now()
	return a.aggregateRange(pathID, end.Add(-d), end, string(period))
}

// AggregateRange summarises one path over an explicit window.
func (a *Aggregator) AggregateRange(pathID types.PathID, since, until time.Time) (AggregatedMetrics, error) {
	return a.aggregateRange(pathID, since, until, "custom")
}

// AggregateAll summarises every listed path over a period, skipping
// paths whose history cannot be read.
func (a *Aggregator) AggregateAll(pathIDs []types.PathID, period Period) ([]AggregatedMetrics, error) {
	if _, err := period.Duration(); err != nil {
		return nil, err
	}
	out := make([]AggregatedMetrics, 0, len(pathIDs))
	for _, id := range pathIDs {
		m, err := a.Aggregate(id, period)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (a *Aggregator) aggregateRange(pathID types.PathID, since, until time.Time, period string) (AggregatedMetrics, error) {
	samples, err := a.history.PathHealthRange(pathID, since, until)
	if err != nil {
		return AggregatedMetrics{}, fmt.Errorf("read health history for path %s: %w", pathID, err)
	}

	m := AggregatedMetrics{
		PathID:    pathID,
		Period:    period,
		StartTime: since,
		EndTime:   until,
	}
	if len(samples) == 0 {
		return m, nil
	}

	m.SampleCount = len(samples)
	m.LatencyMin = samples[0].LatencyMs
	m.ScoreMin = samples[0].HealthScore

	latencies := make([]float64, 0, len(samples))
	upSamples := 0
	for _, s := range samples {
		latencies = append(latencies, s.LatencyMs)

		m.LatencyAvg += s.LatencyMs
		m.PacketLossAvg += s.PacketLossPct
		m.JitterAvg += s.JitterMs
		m.ScoreAvg += s.HealthScore

		m.LatencyMin = min(m.LatencyMin, s.LatencyMs)
		m.LatencyMax = max(m.LatencyMax, s.LatencyMs)
		m.PacketLossMax = max(m.PacketLossMax, s.PacketLossPct)
		m.JitterMax = max(m.JitterMax, s.JitterMs)
		m.ScoreMin = min(m.ScoreMin, s.HealthScore)

		if s.HealthScore >= types.UpScoreThreshold {
			upSamples++
		}
	}

	n := float64(len(samples))
	m.LatencyAvg /= n
	m.PacketLossAvg /= n
	m.JitterAvg /= n
	m.ScoreAvg /= n
	m.UptimePct = float64(upSamples) / n * 100.0
	m.LatencyP95 = percentile(latencies, 95)

	return m, nil
}

// percentile returns the pth percentile of values by rank, matching
// the nearest-rank method. values are copied before sorting.
func percentile(values []float64, p int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
