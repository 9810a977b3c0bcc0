package export

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshroute/meshroute/pkg/types"
)

// HealthProvider serves the live health cache. Implemented by the
// health monitor.
type HealthProvider interface {
	GetAllHealth() map[types.PathID]types.PathHealth
}

// FailoverProvider serves failover policies and runtime state.
// Implemented by the failover engine.
type FailoverProvider interface {
	GetPolicies() []types.FailoverPolicy
	GetState(policyID uint64) (types.FailoverState, bool)
}

// PathHealthView is one path's health in export form.
type PathHealthView struct {
	PathID        types.PathID `json:"path_id"`
	LatencyMs     float64      `json:"latency_ms"`
	PacketLossPct float64      `json:"packet_loss_pct"`
	JitterMs      float64      `json:"jitter_ms"`
	HealthScore   float64      `json:"health_score"`
	Status        string       `json:"status"`
	LastChecked   time.Time    `json:"last_checked"`
}

// HealthSnapshot is the full live health picture at one instant.
type HealthSnapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Paths     []PathHealthView `json:"paths"`
}

// FailoverPolicyView is one policy merged with its runtime state.
type FailoverPolicyView struct {
	PolicyID          uint64         `json:"policy_id"`
	Name              string         `json:"name"`
	PrimaryPathID     types.PathID   `json:"primary_path_id"`
	BackupPathIDs     []types.PathID `json:"backup_path_ids"`
	FailoverThreshold float64        `json:"failover_threshold"`
	FailbackThreshold float64        `json:"failback_threshold"`
	FailbackDelaySecs float64        `json:"failback_delay_secs"`
	Enabled           bool           `json:"enabled"`
	ActivePathID      types.PathID   `json:"active_path_id"`
	UsingPrimary      bool           `json:"using_primary"`
	FailoverCount     uint64         `json:"failover_count"`
}

// FailoverSnapshot is the full failover picture at one instant.
type FailoverSnapshot struct {
	Timestamp time.Time            `json:"timestamp"`
	Policies  []FailoverPolicyView `json:"policies"`
}

// Snapshotter builds point-in-time views of system state for
// rendering and metrics.
type Snapshotter struct {
	health   HealthProvider
	failover FailoverProvider
	clk      clock.Clock
}

// NewSnapshotter creates a snapshotter. failover may be nil.
func NewSnapshotter(health HealthProvider, failover FailoverProvider, clk clock.Clock) *Snapshotter {
	if clk == nil {
		clk = clock.New()
	}
	return &Snapshotter{health: health, failover: failover, clk: clk}
}

// HealthSnapshot captures the live health cache, ordered by path ID.
func (s *Snapshotter) HealthSnapshot() HealthSnapshot {
	all := s.health.GetAllHealth()

	snap := HealthSnapshot{
		Timestamp: s.clk.Now(),
		Paths:     make([]PathHealthView, 0, len(all)),
	}
	for _, h := range all {
		snap.Paths = append(snap.Paths, PathHealthView{
			PathID:        h.PathID,
			LatencyMs:     h.LatencyMs,
			PacketLossPct: h.PacketLossPct,
			JitterMs:      h.JitterMs,
			HealthScore:   h.HealthScore,
			Status:        string(h.Status),
			LastChecked:   h.LastChecked,
		})
	}
	sortPathViews(snap.Paths)
	return snap
}

// FailoverSnapshot captures every policy with its runtime state,
// ordered by policy ID.
func (s *Snapshotter) FailoverSnapshot() FailoverSnapshot {
	snap := FailoverSnapshot{Timestamp: s.clk.Now()}
	if s.failover == nil {
		return snap
	}

	for _, p := range s.failover.GetPolicies() {
		view := FailoverPolicyView{
			PolicyID:          p.ID,
			Name:              p.Name,
			PrimaryPathID:     p.PrimaryPathID,
			BackupPathIDs:     p.BackupPathIDs,
			FailoverThreshold: p.FailoverThreshold,
			FailbackThreshold: p.FailbackThreshold,
			FailbackDelaySecs: p.FailbackDelay.Seconds(),
			Enabled:           p.Enabled,
		}
		if state, ok := s.failover.GetState(p.ID); ok {
			view.ActivePathID = state.ActivePathID
			view.UsingPrimary = state.UsingPrimary
			view.FailoverCount = state.FailoverCount
		}
		snap.Policies = append(snap.Policies, view)
	}
	return snap
}

func sortPathViews(views []PathHealthView) {
	sort.Slice(views, func(i, j int) bool { return views[i].PathID < views[j].PathID })
}
