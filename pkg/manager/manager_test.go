package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshroute/meshroute/pkg/config"
	"github.com/meshroute/meshroute/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.MetricsAddr = ""
	cfg.Health.CheckInterval = 50 * time.Millisecond
	cfg.Health.ProbesPerCheck = 1
	cfg.Health.ProbeTimeout = 100 * time.Millisecond
	cfg.Paths = []config.PathConfig{
		{ID: 1, Name: "mpls", Target: "127.0.0.1:19001", BandwidthMbps: 100},
		{ID: 2, Name: "lte", Target: "127.0.0.1:19002", BandwidthMbps: 50, CostPerGB: 0.05},
	}
	cfg.FailoverPolicies = []config.FailoverPolicyConfig{
		{ID: 1, Name: "edge", PrimaryPath: 1, BackupPaths: []uint64{2}},
	}
	cfg.RoutingPolicies = []config.RoutingPolicyConfig{
		{ID: 1, Name: "default", Priority: 1000, Preset: "balanced"},
	}
	return cfg
}

func TestNewManagerWiresDeclaredState(t *testing.T) {
	m, err := NewManager(testConfig(t))
	require.NoError(t, err)
	defer m.Stop()

	policies := m.Failover().GetPolicies()
	require.Len(t, policies, 1)
	assert.Equal(t, types.PathID(1), policies[0].PrimaryPathID)

	state, ok := m.Failover().GetState(1)
	require.True(t, ok)
	assert.True(t, state.UsingPrimary)

	routingPolicies := m.Routing().ListPolicies()
	require.Len(t, routingPolicies, 1)
	assert.Equal(t, "default", routingPolicies[0].Name)

	assert.NotEqual(t, types.SiteID{}, m.SiteID())
}

func TestNewManagerRejectsBadRoutingPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.RoutingPolicies = []config.RoutingPolicyConfig{
		{ID: 1, Name: "bad", Priority: 1, Preset: "warp-speed"},
	}

	_, err := NewManager(cfg)
	assert.Error(t, err)
}

func TestFailoverPoliciesSurviveRestart(t *testing.T) {
	cfg := testConfig(t)

	m, err := NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Stop())

	// Same data dir, no declared policies: restored from the store.
	cfg2 := testConfig(t)
	cfg2.DataDir = cfg.DataDir
	cfg2.FailoverPolicies = nil

	m2, err := NewManager(cfg2)
	require.NoError(t, err)
	defer m2.Stop()

	policies := m2.Failover().GetPolicies()
	require.Len(t, policies, 1)
	assert.Equal(t, "edge", policies[0].Name)
}

func TestStartStop(t *testing.T) {
	m, err := NewManager(testConfig(t))
	require.NoError(t, err)

	m.Start()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, m.Stop())
}

func TestConfiguredSiteIDIsKept(t *testing.T) {
	cfg := testConfig(t)
	cfg.SiteID = "2b1e7f3a-9c41-4f4e-8a9b-0d5c6e7f8a9b"

	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Stop()

	assert.Equal(t, cfg.SiteID, m.SiteID().String())
}
