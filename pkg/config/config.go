package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meshroute/meshroute/pkg/types"
)

// Config is the daemon's full configuration, loaded from YAML.
type Config struct {
	// SiteID is this site's identifier. Generated when empty.
	SiteID string `yaml:"site_id,omitempty"`

	// DataDir holds the embedded database.
	DataDir string `yaml:"data_dir"`

	// MetricsAddr is the listen address for the metrics and health
	// HTTP endpoints. Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	Log      LogConfig      `yaml:"log"`
	Health   HealthConfig   `yaml:"health"`
	Failover FailoverConfig `yaml:"failover"`
	Routing  RoutingConfig  `yaml:"routing"`

	Paths            []PathConfig           `yaml:"paths,omitempty"`
	FailoverPolicies []FailoverPolicyConfig `yaml:"failover_policies,omitempty"`
	RoutingPolicies  []RoutingPolicyConfig  `yaml:"routing_policies,omitempty"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// HealthConfig tunes path health monitoring.
type HealthConfig struct {
	CheckInterval  time.Duration `yaml:"check_interval"`
	ProbesPerCheck int           `yaml:"probes_per_check"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeGap       time.Duration `yaml:"probe_gap"`
	PersistEvery   int           `yaml:"persist_every"`
}

// FailoverConfig tunes the failover engine.
type FailoverConfig struct {
	EvalInterval time.Duration `yaml:"eval_interval"`
}

// RoutingConfig tunes the routing engine.
type RoutingConfig struct {
	FlowTTL          time.Duration `yaml:"flow_ttl"`
	MaxFlows         int           `yaml:"max_flows"`
	StickinessMargin float64       `yaml:"stickiness_margin"`
}

// PathConfig declares one monitored path.
type PathConfig struct {
	ID            uint64  `yaml:"id"`
	Name          string  `yaml:"name"`
	Target        string  `yaml:"target"`
	BandwidthMbps float64 `yaml:"bandwidth_mbps"`
	CostPerGB     float64 `yaml:"cost_per_gb"`
}

// FailoverPolicyConfig declares one failover policy.
type FailoverPolicyConfig struct {
	ID                uint64        `yaml:"id"`
	Name              string        `yaml:"name"`
	PrimaryPath       uint64        `yaml:"primary_path"`
	BackupPaths       []uint64      `yaml:"backup_paths"`
	FailoverThreshold float64       `yaml:"failover_threshold"`
	FailbackThreshold float64       `yaml:"failback_threshold"`
	FailbackDelay     time.Duration `yaml:"failback_delay"`
	Disabled          bool          `yaml:"disabled,omitempty"`
}

// RoutingPolicyConfig declares one routing policy.
type RoutingPolicyConfig struct {
	ID       uint64 `yaml:"id"`
	Name     string `yaml:"name"`
	Priority uint32 `yaml:"priority"`

	// Match rules; all empty means match everything.
	Protocol    uint8  `yaml:"protocol,omitempty"`
	SrcPrefix   string `yaml:"src_prefix,omitempty"`
	DstPrefix   string `yaml:"dst_prefix,omitempty"`
	DstPortMin  uint16 `yaml:"dst_port_min,omitempty"`
	DstPortMax  uint16 `yaml:"dst_port_max,omitempty"`
	AppClass    string `yaml:"app_class,omitempty"`

	// Preset names a weight preset: latency_sensitive,
	// throughput_focused, cost_optimized or balanced. Explicit
	// weights override it.
	Preset  string                `yaml:"preset,omitempty"`
	Weights *types.ScoringWeights `yaml:"weights,omitempty"`

	Disabled bool `yaml:"disabled,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:     "/var/lib/meshroute",
		MetricsAddr: ":9090",
		Log:         LogConfig{Level: "info", JSON: false},
		Health: HealthConfig{
			CheckInterval:  10 * time.Second,
			ProbesPerCheck: 5,
			ProbeTimeout:   time.Second,
			ProbeGap:       200 * time.Millisecond,
			PersistEvery:   10,
		},
		Failover: FailoverConfig{EvalInterval: 5 * time.Second},
		Routing: RoutingConfig{
			FlowTTL:          5 * time.Minute,
			MaxFlows:         65536,
			StickinessMargin: 5.0,
		},
	}
}

// Load reads a YAML config file over the defaults. Fields absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the YAML schema cannot
// express.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Health.ProbesPerCheck <= 0 {
		return fmt.Errorf("health.probes_per_check must be positive")
	}
	if c.Health.CheckInterval <= 0 {
		return fmt.Errorf("health.check_interval must be positive")
	}
	if c.Failover.EvalInterval <= 0 {
		return fmt.Errorf("failover.eval_interval must be positive")
	}

	seen := make(map[uint64]bool, len(c.Paths))
	for _, p := range c.Paths {
		if seen[p.ID] {
			return fmt.Errorf("duplicate path id %d", p.ID)
		}
		seen[p.ID] = true
		if p.Target == "" {
			return fmt.Errorf("path %d: target is required", p.ID)
		}
	}
	return nil
}

// Path converts a declared path to its domain type.
func (p PathConfig) Path() types.Path {
	return types.Path{
		ID:            types.PathID(p.ID),
		Name:          p.Name,
		Target:        p.Target,
		BandwidthMbps: p.BandwidthMbps,
		CostPerGB:     p.CostPerGB,
	}
}

// FailoverPolicy converts a declared policy to its domain type,
// filling defaults for unset thresholds.
func (p FailoverPolicyConfig) FailoverPolicy() *types.FailoverPolicy {
	backups := make([]types.PathID, 0, len(p.BackupPaths))
	for _, b := range p.BackupPaths {
		backups = append(backups, types.PathID(b))
	}

	policy := types.NewFailoverPolicy(p.ID, p.Name, types.PathID(p.PrimaryPath), backups)
	if p.FailoverThreshold != 0 {
		policy.FailoverThreshold = p.FailoverThreshold
	}
	if p.FailbackThreshold != 0 {
		policy.FailbackThreshold = p.FailbackThreshold
	}
	if p.FailbackDelay != 0 {
		policy.FailbackDelay = p.FailbackDelay
	}
	policy.Enabled = !p.Disabled
	return policy
}

// RoutingPolicy converts a declared policy to its domain type.
func (p RoutingPolicyConfig) RoutingPolicy() (*types.RoutingPolicy, error) {
	policy := &types.RoutingPolicy{
		ID:       p.ID,
		Name:     p.Name,
		Priority: p.Priority,
		Enabled:  !p.Disabled,
	}

	if p.Protocol != 0 {
		proto := p.Protocol
		policy.Match.Protocol = &proto
	}
	if p.SrcPrefix != "" {
		prefix, err := parsePrefix(p.SrcPrefix)
		if err != nil {
			return nil, fmt.Errorf("routing policy %q: src_prefix: %w", p.Name, err)
		}
		policy.Match.SrcPrefix = prefix
	}
	if p.DstPrefix != "" {
		prefix, err := parsePrefix(p.DstPrefix)
		if err != nil {
			return nil, fmt.Errorf("routing policy %q: dst_prefix: %w", p.Name, err)
		}
		policy.Match.DstPrefix = prefix
	}
	if p.DstPortMin != 0 || p.DstPortMax != 0 {
		policy.Match.DstPortRange = &types.PortRange{Min: p.DstPortMin, Max: p.DstPortMax}
	}
	policy.Match.AppClass = types.AppClass(p.AppClass)

	switch {
	case p.Weights != nil:
		policy.Weights = *p.Weights
	case p.Preset != "":
		w, err := presetWeights(p.Preset)
		if err != nil {
			return nil, fmt.Errorf("routing policy %q: %w", p.Name, err)
		}
		policy.Weights = w
	default:
		policy.Weights = types.BalancedWeights()
	}
	return policy, nil
}

// parsePrefix accepts CIDR notation or a bare address, which gets a
// single-address prefix.
func parsePrefix(s string) (*netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return &prefix, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix %q", s)
	}
	prefix := netip.PrefixFrom(addr, addr.BitLen())
	return &prefix, nil
}

func presetWeights(name string) (types.ScoringWeights, error) {
	switch name {
	case "latency_sensitive":
		return types.LatencySensitiveWeights(), nil
	case "throughput_focused":
		return types.ThroughputFocusedWeights(), nil
	case "cost_optimized":
		return types.CostOptimizedWeights(), nil
	case "balanced":
		return types.BalancedWeights(), nil
	default:
		return types.ScoringWeights{}, fmt.Errorf("unknown weight preset %q", name)
	}
}
