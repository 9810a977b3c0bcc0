package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshroute/meshroute/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/mr-test
metrics_addr: ":9100"
log:
  level: debug
  json: true
health:
  check_interval: 2s
  probes_per_check: 3
  probe_timeout: 500ms
  probe_gap: 50ms
  persist_every: 5
failover:
  eval_interval: 1s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mr-test", cfg.DataDir)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 2*time.Second, cfg.Health.CheckInterval)
	assert.Equal(t, 3, cfg.Health.ProbesPerCheck)
	assert.Equal(t, time.Second, cfg.Failover.EvalInterval)
	// Untouched section keeps defaults.
	assert.Equal(t, 5*time.Minute, cfg.Routing.FlowTTL)
	assert.InDelta(t, 5.0, cfg.Routing.StickinessMargin, 0.001)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsDuplicatePaths(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/mr-test
paths:
  - id: 1
    name: a
    target: 10.0.0.1:3000
  - id: 1
    name: b
    target: 10.0.0.2:3000
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "duplicate path id")
}

func TestValidateRejectsPathWithoutTarget(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/mr-test
paths:
  - id: 1
    name: a
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "target is required")
}

func TestFailoverPolicyConversion(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/mr-test
failover_policies:
  - id: 1
    name: edge
    primary_path: 10
    backup_paths: [20, 30]
    failover_threshold: 40
    failback_delay: 90s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.FailoverPolicies, 1)

	policy := cfg.FailoverPolicies[0].FailoverPolicy()
	require.NoError(t, policy.Validate())
	assert.Equal(t, types.PathID(10), policy.PrimaryPathID)
	assert.Equal(t, []types.PathID{20, 30}, policy.BackupPathIDs)
	assert.InDelta(t, 40.0, policy.FailoverThreshold, 0.001)
	// Unset threshold keeps the default.
	assert.InDelta(t, types.DefaultFailbackThreshold, policy.FailbackThreshold, 0.001)
	assert.Equal(t, 90*time.Second, policy.FailbackDelay)
	assert.True(t, policy.Enabled)
}

func TestRoutingPolicyConversion(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/mr-test
routing_policies:
  - id: 1
    name: voip
    priority: 10
    protocol: 17
    dst_prefix: 10.20.0.0/16
    preset: latency_sensitive
  - id: 2
    name: default
    priority: 1000
    preset: balanced
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.RoutingPolicies, 2)

	voip, err := cfg.RoutingPolicies[0].RoutingPolicy()
	require.NoError(t, err)
	require.NoError(t, voip.Validate())
	require.NotNil(t, voip.Match.Protocol)
	assert.Equal(t, uint8(17), *voip.Match.Protocol)
	require.NotNil(t, voip.Match.DstPrefix)
	assert.Equal(t, "10.20.0.0/16", voip.Match.DstPrefix.String())
	assert.Equal(t, types.LatencySensitiveWeights(), voip.Weights)

	def, err := cfg.RoutingPolicies[1].RoutingPolicy()
	require.NoError(t, err)
	assert.Equal(t, types.BalancedWeights(), def.Weights)
}

func TestRoutingPolicyBadPreset(t *testing.T) {
	p := RoutingPolicyConfig{ID: 1, Name: "x", Preset: "fastest"}
	_, err := p.RoutingPolicy()
	assert.ErrorContains(t, err, "unknown weight preset")
}

func TestParsePrefixBareAddress(t *testing.T) {
	prefix, err := parsePrefix("192.168.1.7")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.7/32", prefix.String())

	_, err = parsePrefix("not-an-ip")
	assert.Error(t, err)
}
