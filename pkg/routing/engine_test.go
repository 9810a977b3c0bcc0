package routing

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshroute/meshroute/pkg/events"
	"github.com/meshroute/meshroute/pkg/types"
)

type fakeHealth struct {
	health map[types.PathID]types.PathHealth
}

func (f *fakeHealth) GetPathHealth(pathID types.PathID) (types.PathHealth, bool) {
	h, ok := f.health[pathID]
	return h, ok
}

func (f *fakeHealth) set(id types.PathID, latencyMs, lossPct, jitterMs, score float64) {
	f.health[id] = types.PathHealth{
		PathID:        id,
		LatencyMs:     latencyMs,
		PacketLossPct: lossPct,
		JitterMs:      jitterMs,
		HealthScore:   score,
		Status:        types.StatusForScore(score),
	}
}

type staticResolver struct {
	overrides map[types.PathID]types.PathID
}

func (r *staticResolver) ActivePathFor(pathID types.PathID) types.PathID {
	if to, ok := r.overrides[pathID]; ok {
		return to
	}
	return pathID
}

func testPath(id types.PathID, bandwidthMbps, costPerGB float64) types.Path {
	return types.Path{
		ID:            id,
		Name:          "path-" + id.String(),
		Target:        "10.0.0." + id.String() + ":3000",
		BandwidthMbps: bandwidthMbps,
		CostPerGB:     costPerGB,
	}
}

func testFlow(dstPort uint16) types.FlowKey {
	return types.FlowKey{
		SrcIP:    netip.MustParseAddr("192.168.1.10"),
		DstIP:    netip.MustParseAddr("10.20.0.5"),
		SrcPort:  40000,
		DstPort:  dstPort,
		Protocol: types.ProtocolUDP,
	}
}

func newTestEngine(health *fakeHealth) *Engine {
	return NewEngine(DefaultConfig(), health, nil, nil)
}

func TestSelectPathNoPathsRegistered(t *testing.T) {
	e := newTestEngine(&fakeHealth{health: map[types.PathID]types.PathHealth{}})

	_, err := e.SelectPath(testFlow(443))
	assert.True(t, errors.Is(err, ErrNoViablePath))
}

func TestSelectPathSkipsDownPaths(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	require.NoError(t, e.RegisterPath(testPath(2, 100, 0)))

	health.set(1, 20, 0, 2, 95)
	health.set(2, 10, 60, 1, 20) // down

	got, err := e.SelectPath(testFlow(443))
	require.NoError(t, err)
	assert.Equal(t, types.PathID(1), got)
}

func TestSelectPathPrefersLowLatencyForVoIP(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 1000, 0))) // fat but slow
	require.NoError(t, e.RegisterPath(testPath(2, 50, 0)))   // thin but fast

	health.set(1, 150, 0, 20, 80)
	health.set(2, 10, 0, 1, 98)

	policy := &types.RoutingPolicy{
		ID:       1,
		Name:     "voip",
		Priority: 10,
		Match:    types.MatchRules{AppClass: types.AppClassVoIP},
		Weights:  types.LatencySensitiveWeights(),
		Enabled:  true,
	}
	require.NoError(t, e.AddPolicy(policy))

	got, err := e.SelectPath(testFlow(5060)) // SIP
	require.NoError(t, err)
	assert.Equal(t, types.PathID(2), got)
}

func TestSelectPathPrefersBandwidthForBulk(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 1000, 0)))
	require.NoError(t, e.RegisterPath(testPath(2, 50, 0)))

	health.set(1, 150, 0, 20, 80)
	health.set(2, 10, 0, 1, 98)

	policy := &types.RoutingPolicy{
		ID:       1,
		Name:     "bulk",
		Priority: 10,
		Match:    types.MatchRules{DstPortRange: &types.PortRange{Min: 873, Max: 873}},
		Weights:  types.ThroughputFocusedWeights(),
		Enabled:  true,
	}
	require.NoError(t, e.AddPolicy(policy))

	flow := testFlow(873)
	flow.Protocol = types.ProtocolTCP

	got, err := e.SelectPath(flow)
	require.NoError(t, err)
	assert.Equal(t, types.PathID(1), got)
}

func TestFirstMatchingPolicyWins(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 1000, 0)))
	require.NoError(t, e.RegisterPath(testPath(2, 50, 0)))

	health.set(1, 150, 0, 20, 80)
	health.set(2, 10, 0, 1, 98)

	proto := types.ProtocolUDP
	require.NoError(t, e.AddPolicy(&types.RoutingPolicy{
		ID: 1, Name: "low-prio-throughput", Priority: 20,
		Match:   types.MatchRules{Protocol: &proto},
		Weights: types.ThroughputFocusedWeights(),
		Enabled: true,
	}))
	require.NoError(t, e.AddPolicy(&types.RoutingPolicy{
		ID: 2, Name: "high-prio-latency", Priority: 5,
		Match:   types.MatchRules{Protocol: &proto},
		Weights: types.LatencySensitiveWeights(),
		Enabled: true,
	}))

	got, err := e.SelectPath(testFlow(9999))
	require.NoError(t, err)
	assert.Equal(t, types.PathID(2), got, "priority 5 policy outranks priority 20")

	matched, ok := e.MatchingPolicy(testFlow(9999))
	require.True(t, ok)
	assert.Equal(t, uint64(2), matched.ID)
}

func TestDisabledPolicyIsSkipped(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	health.set(1, 20, 0, 2, 95)

	proto := types.ProtocolUDP
	require.NoError(t, e.AddPolicy(&types.RoutingPolicy{
		ID: 1, Name: "disabled", Priority: 1,
		Match:   types.MatchRules{Protocol: &proto},
		Weights: types.LatencySensitiveWeights(),
		Enabled: false,
	}))

	_, ok := e.MatchingPolicy(testFlow(443))
	assert.False(t, ok, "disabled policies never match")
}

func TestSelectionIsDeterministicOnTies(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	// Identical metrics and attributes: scores tie exactly.
	for _, id := range []types.PathID{7, 3, 5} {
		require.NoError(t, e.RegisterPath(testPath(id, 100, 0.01)))
		health.set(id, 25, 0, 3, 90)
	}

	for i := 0; i < 10; i++ {
		got, err := e.SelectPath(testFlow(443))
		require.NoError(t, err)
		assert.Equal(t, types.PathID(3), got, "ties must break on lowest path ID")
	}
}

func TestFlowStickiness(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	require.NoError(t, e.RegisterPath(testPath(2, 100, 0)))

	health.set(1, 20, 0, 2, 95)
	health.set(2, 30, 0, 3, 90)

	flow := testFlow(443)
	first, err := e.SelectPath(flow)
	require.NoError(t, err)
	require.Equal(t, types.PathID(1), first)

	// Path 2 edges ahead, but not past the margin: the flow stays.
	health.set(1, 24, 0, 2, 93)
	health.set(2, 20, 0, 2, 95)
	second, err := e.SelectPath(flow)
	require.NoError(t, err)
	assert.Equal(t, types.PathID(1), second, "small score changes must not move flows")

	// Path 1 collapses well past the margin: the flow moves.
	health.set(1, 180, 5, 40, 55)
	third, err := e.SelectPath(flow)
	require.NoError(t, err)
	assert.Equal(t, types.PathID(2), third)
}

func TestBoundPathGoingDownRebinds(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	require.NoError(t, e.RegisterPath(testPath(2, 100, 0)))

	health.set(1, 20, 0, 2, 95)
	health.set(2, 30, 0, 3, 90)

	flow := testFlow(443)
	first, _ := e.SelectPath(flow)
	require.Equal(t, types.PathID(1), first)

	health.set(1, 500, 80, 100, 5) // path 1 dies

	second, err := e.SelectPath(flow)
	require.NoError(t, err)
	assert.Equal(t, types.PathID(2), second)
}

func TestFailoverResolverCollapsesSelection(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	resolver := &staticResolver{overrides: map[types.PathID]types.PathID{1: 2}}
	e := NewEngine(DefaultConfig(), health, resolver, nil)

	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	require.NoError(t, e.RegisterPath(testPath(2, 100, 0)))
	health.set(1, 20, 0, 2, 95)
	health.set(2, 30, 0, 3, 90)

	got, err := e.SelectPath(testFlow(443))
	require.NoError(t, err)
	assert.Equal(t, types.PathID(2), got, "selection follows the failover's active path")
}

func TestPolicyChangeInvalidatesBindings(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	e := newTestEngine(health)
	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	health.set(1, 20, 0, 2, 95)

	_, err := e.SelectPath(testFlow(443))
	require.NoError(t, err)
	require.Equal(t, 1, e.FlowCount())

	require.NoError(t, e.AddPolicy(&types.RoutingPolicy{
		ID: 1, Name: "anything", Priority: 1,
		Weights: types.BalancedWeights(),
		Enabled: true,
	}))
	assert.Equal(t, 0, e.FlowCount())
}

func TestFailoverEventInvalidatesAffectedFlows(t *testing.T) {
	health := &fakeHealth{health: map[types.PathID]types.PathHealth{}}
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	e := NewEngine(DefaultConfig(), health, nil, broker)
	require.NoError(t, e.RegisterPath(testPath(1, 100, 0)))
	health.set(1, 20, 0, 2, 95)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	_, err := e.SelectPath(testFlow(443))
	require.NoError(t, err)
	require.Equal(t, 1, e.FlowCount())

	broker.Publish(&types.FailoverEvent{
		PolicyID:   9,
		Type:       types.EventTriggered,
		FromPathID: 1,
		ToPathID:   2,
	})

	require.Eventually(t, func() bool {
		return e.FlowCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "bindings to the switched path should be dropped")
}

func TestRemovePolicyUnknown(t *testing.T) {
	e := newTestEngine(&fakeHealth{health: map[types.PathID]types.PathHealth{}})
	assert.True(t, errors.Is(e.RemovePolicy(42), ErrPolicyNotFound))
}

func TestAddPolicyRejectsInvalidWeights(t *testing.T) {
	e := newTestEngine(&fakeHealth{health: map[types.PathID]types.PathHealth{}})
	err := e.AddPolicy(&types.RoutingPolicy{
		ID: 1, Name: "bad", Priority: 1,
		Weights: types.ScoringWeights{}, // all zero
		Enabled: true,
	})
	assert.Error(t, err)
}
