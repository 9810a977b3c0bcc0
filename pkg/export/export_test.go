package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshroute/meshroute/pkg/storage"
	"github.com/meshroute/meshroute/pkg/types"
)

type fakeHealthProvider struct {
	health map[types.PathID]types.PathHealth
}

func (f *fakeHealthProvider) GetAllHealth() map[types.PathID]types.PathHealth {
	return f.health
}

type fakeFailoverProvider struct {
	policies []types.FailoverPolicy
	states   map[uint64]types.FailoverState
}

func (f *fakeFailoverProvider) GetPolicies() []types.FailoverPolicy {
	return f.policies
}

func (f *fakeFailoverProvider) GetState(policyID uint64) (types.FailoverState, bool) {
	s, ok := f.states[policyID]
	return s, ok
}

func testClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return clk
}

func TestHealthSnapshotOrderedByPathID(t *testing.T) {
	provider := &fakeHealthProvider{health: map[types.PathID]types.PathHealth{
		7: {PathID: 7, HealthScore: 90, Status: types.PathStatusUp},
		2: {PathID: 2, HealthScore: 55, Status: types.PathStatusDegraded},
		5: {PathID: 5, HealthScore: 10, Status: types.PathStatusDown},
	}}

	snap := NewSnapshotter(provider, nil, testClock()).HealthSnapshot()

	require.Len(t, snap.Paths, 3)
	assert.Equal(t, types.PathID(2), snap.Paths[0].PathID)
	assert.Equal(t, types.PathID(5), snap.Paths[1].PathID)
	assert.Equal(t, types.PathID(7), snap.Paths[2].PathID)
	assert.Equal(t, "degraded", snap.Paths[0].Status)
}

func TestFailoverSnapshotMergesState(t *testing.T) {
	now := time.Now()
	failover := &fakeFailoverProvider{
		policies: []types.FailoverPolicy{
			*types.NewFailoverPolicy(1, "edge", 10, []types.PathID{20}),
		},
		states: map[uint64]types.FailoverState{
			1: {PolicyID: 1, ActivePathID: 20, UsingPrimary: false, FailoverCount: 3, LastFailover: &now},
		},
	}

	snap := NewSnapshotter(&fakeHealthProvider{}, failover, testClock()).FailoverSnapshot()

	require.Len(t, snap.Policies, 1)
	view := snap.Policies[0]
	assert.Equal(t, types.PathID(20), view.ActivePathID)
	assert.False(t, view.UsingPrimary)
	assert.Equal(t, uint64(3), view.FailoverCount)
	assert.InDelta(t, 60.0, view.FailbackDelaySecs, 0.01)
}

func seedHistory(t *testing.T, store storage.Store, pathID types.PathID, base time.Time) {
	t.Helper()
	// 20 samples a minute apart: latencies 10..200ms, two of them
	// below the up threshold.
	for i := 0; i < 20; i++ {
		score := 95.0
		if i < 2 {
			score = 40.0
		}
		require.NoError(t, store.AppendPathHealth(types.PathHealth{
			PathID:        pathID,
			LatencyMs:     float64((i + 1) * 10),
			PacketLossPct: float64(i % 4),
			JitterMs:      2,
			HealthScore:   score,
			Status:        types.StatusForScore(score),
			LastChecked:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestAggregateComputesStats(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	clk := testClock()
	seedHistory(t, store, 1, clk.Now().Add(-30*time.Minute))

	agg := NewAggregator(store, clk)
	m, err := agg.Aggregate(1, PeriodHour)
	require.NoError(t, err)

	assert.Equal(t, 20, m.SampleCount)
	assert.InDelta(t, 105.0, m.LatencyAvg, 0.01) // mean of 10..200
	assert.InDelta(t, 10.0, m.LatencyMin, 0.01)
	assert.InDelta(t, 200.0, m.LatencyMax, 0.01)
	assert.InDelta(t, 200.0, m.LatencyP95, 0.01) // nearest-rank over 20 samples
	assert.InDelta(t, 40.0, m.ScoreMin, 0.01)
	assert.InDelta(t, 90.0, m.UptimePct, 0.01) // 18 of 20 at/above 80
}

func TestAggregateEmptyWindow(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	agg := NewAggregator(store, testClock())
	m, err := agg.Aggregate(99, PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 0, m.SampleCount)
	assert.Zero(t, m.LatencyAvg)
	assert.Zero(t, m.UptimePct)
}

func TestAggregateUnknownPeriod(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	agg := NewAggregator(store, testClock())
	_, err = agg.Aggregate(1, Period("fortnight"))
	assert.Error(t, err)
}

func TestAggregateAllSkipsNothingOnHealthyStore(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	clk := testClock()
	seedHistory(t, store, 1, clk.Now().Add(-30*time.Minute))
	seedHistory(t, store, 2, clk.Now().Add(-30*time.Minute))

	agg := NewAggregator(store, clk)
	all, err := agg.AggregateAll([]types.PathID{1, 2}, PeriodHour)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestJSONRendererRoundTrips(t *testing.T) {
	provider := &fakeHealthProvider{health: map[types.PathID]types.PathHealth{
		1: {PathID: 1, LatencyMs: 12.5, HealthScore: 96.2, Status: types.PathStatusUp},
	}}
	snap := NewSnapshotter(provider, nil, testClock()).HealthSnapshot()

	out, err := JSONRenderer{}.RenderHealth(snap)
	require.NoError(t, err)

	var decoded HealthSnapshot
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Paths, 1)
	assert.InDelta(t, 96.2, decoded.Paths[0].HealthScore, 0.001)
}

func TestTextRendererListsEveryPath(t *testing.T) {
	provider := &fakeHealthProvider{health: map[types.PathID]types.PathHealth{
		1: {PathID: 1, LatencyMs: 12.5, HealthScore: 96.2, Status: types.PathStatusUp},
		2: {PathID: 2, LatencyMs: 80.0, HealthScore: 61.0, Status: types.PathStatusDegraded},
	}}
	snap := NewSnapshotter(provider, nil, testClock()).HealthSnapshot()

	out, err := TextRenderer{}.RenderHealth(snap)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.Contains(text, "up"))
	assert.True(t, strings.Contains(text, "degraded"))
	assert.Equal(t, 4, strings.Count(text, "\n"), "header, column row and one line per path")
}

func TestPercentileNearestRank(t *testing.T) {
	values := []float64{5, 1, 3, 2, 4}
	assert.InDelta(t, 5.0, percentile(values, 95), 0.001)
	assert.InDelta(t, 3.0, percentile(values, 50), 0.001)
	assert.Zero(t, percentile(nil, 95))
	// Input must not be reordered.
	assert.Equal(t, []float64{5, 1, 3, 2, 4}, values)
}
