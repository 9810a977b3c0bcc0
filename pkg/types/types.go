package types

import (
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// PathID uniquely identifies a logical path between two sites.
// IDs are ordered; the ordering is used as the deterministic tie-breaker
// wherever two paths score identically.
type PathID uint64

func (p PathID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// ParsePathID parses the decimal form produced by String.
func ParsePathID(s string) (PathID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid path id %q: %w", s, err)
	}
	return PathID(v), nil
}

// SiteID uniquely identifies a site in the mesh.
type SiteID uuid.UUID

// NewSiteID generates a random site identifier.
func NewSiteID() SiteID {
	return SiteID(uuid.New())
}

// ParseSiteID parses the canonical UUID string form.
func ParseSiteID(s string) (SiteID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SiteID{}, fmt.Errorf("invalid site id %q: %w", s, err)
	}
	return SiteID(u), nil
}

func (s SiteID) String() string {
	return uuid.UUID(s).String()
}

// PathStatus classifies a path's usability.
type PathStatus string

const (
	PathStatusUp       PathStatus = "up"
	PathStatusDegraded PathStatus = "degraded"
	PathStatusDown     PathStatus = "down"
)

// Health score boundaries separating the three path states.
const (
	UpScoreThreshold       = 80.0
	DegradedScoreThreshold = 50.0
)

// StatusForScore maps a health score to its path status.
// The status is a pure function of the score: Up at 80 and above,
// Degraded at 50-79, Down below 50.
func StatusForScore(score float64) PathStatus {
	switch {
	case score >= UpScoreThreshold:
		return PathStatusUp
	case score >= DegradedScoreThreshold:
		return PathStatusDegraded
	default:
		return PathStatusDown
	}
}

// PathHealth is the measured quality of a path at a point in time.
// The monitor overwrites the cached record on every check cycle;
// persisted copies are append-only.
type PathHealth struct {
	PathID        PathID
	LatencyMs     float64
	PacketLossPct float64
	JitterMs      float64
	HealthScore   float64
	Status        PathStatus
	LastChecked   time.Time
}

// IsUsable reports whether the path can carry traffic (Up or Degraded).
func (h PathHealth) IsUsable() bool {
	return h.Status != PathStatusDown
}

// Path describes a logical route between two sites, together with the
// static attributes routing needs that probing cannot measure.
type Path struct {
	ID            PathID
	Name          string
	SrcSite       SiteID
	DstSite       SiteID
	Target        string // probe target address, host:port
	BandwidthMbps float64
	CostPerGB     float64
}

// Validate checks the path definition.
func (p Path) Validate() error {
	if p.ID == 0 {
		return fmt.Errorf("path id is required")
	}
	if p.Target == "" {
		return fmt.Errorf("path %s: probe target is required", p.ID)
	}
	if p.BandwidthMbps < 0 {
		return fmt.Errorf("path %s: bandwidth cannot be negative", p.ID)
	}
	if p.CostPerGB < 0 {
		return fmt.Errorf("path %s: cost cannot be negative", p.ID)
	}
	return nil
}

// Protocol numbers used in flow keys and match rules.
const (
	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
)

// FlowKey identifies a traffic flow by its 5-tuple plus DSCP marking.
// FlowKey is comparable and usable as a map key.
type FlowKey struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	DSCP     uint8
}

func (f FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/%d", f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.Protocol)
}

// Default hysteresis parameters for failover policies.
const (
	DefaultFailoverThreshold = 50.0
	DefaultFailbackThreshold = 80.0
	DefaultFailbackDelay     = 60 * time.Second
)

// FailoverPolicy configures automatic primary/backup switching for one
// protected path pair. The gap between FailoverThreshold and
// FailbackThreshold plus FailbackDelay is the anti-flap mechanism.
type FailoverPolicy struct {
	ID                uint64
	Name              string
	PrimaryPathID     PathID
	BackupPathIDs     []PathID // priority order; must not contain primary
	FailoverThreshold float64  // switch away from primary below this score
	FailbackThreshold float64  // primary must reach this score to return
	FailbackDelay     time.Duration
	Enabled           bool
}

// NewFailoverPolicy creates a policy with default thresholds.
func NewFailoverPolicy(id uint64, name string, primary PathID, backups []PathID) *FailoverPolicy {
	return &FailoverPolicy{
		ID:                id,
		Name:              name,
		PrimaryPathID:     primary,
		BackupPathIDs:     backups,
		FailoverThreshold: DefaultFailoverThreshold,
		FailbackThreshold: DefaultFailbackThreshold,
		FailbackDelay:     DefaultFailbackDelay,
		Enabled:           true,
	}
}

// Validate enforces the policy invariants. A policy that fails
// validation is rejected before any state is created for it.
func (p *FailoverPolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if len(p.BackupPathIDs) == 0 {
		return fmt.Errorf("policy %q: at least one backup path is required", p.Name)
	}
	for _, b := range p.BackupPathIDs {
		if b == p.PrimaryPathID {
			return fmt.Errorf("policy %q: primary path %s cannot be its own backup", p.Name, p.PrimaryPathID)
		}
	}
	if p.FailoverThreshold < 0 || p.FailoverThreshold > 100 {
		return fmt.Errorf("policy %q: failover threshold %.1f outside [0,100]", p.Name, p.FailoverThreshold)
	}
	if p.FailbackThreshold < 0 || p.FailbackThreshold > 100 {
		return fmt.Errorf("policy %q: failback threshold %.1f outside [0,100]", p.Name, p.FailbackThreshold)
	}
	if p.FailoverThreshold >= p.FailbackThreshold {
		return fmt.Errorf("policy %q: failover threshold %.1f must be below failback threshold %.1f",
			p.Name, p.FailoverThreshold, p.FailbackThreshold)
	}
	if p.FailbackDelay < 0 {
		return fmt.Errorf("policy %q: failback delay cannot be negative", p.Name)
	}
	return nil
}

// ShouldFailover reports whether the primary's score calls for a
// switch to backup. The comparison is strict: a score exactly at the
// threshold stays on primary.
func (p *FailoverPolicy) ShouldFailover(primaryScore float64) bool {
	return p.Enabled && primaryScore < p.FailoverThreshold
}

// ShouldFailback reports whether the primary's score allows a return
// to primary. Scores at or above the threshold qualify; the failback
// delay is tracked separately by FailoverState.
func (p *FailoverPolicy) ShouldFailback(primaryScore float64) bool {
	return p.Enabled && primaryScore >= p.FailbackThreshold
}

// FailoverState is the runtime state of one failover policy. It is
// owned exclusively by the failover engine's evaluation loop; readers
// get copies.
type FailoverState struct {
	PolicyID            uint64
	ActivePathID        PathID
	UsingPrimary        bool
	LastFailover        *time.Time
	PrimaryHealthySince *time.Time
	FailoverCount       uint64
}

// NewFailoverState initialises state on the primary path.
func NewFailoverState(policyID uint64, primary PathID, now time.Time) *FailoverState {
	healthy := now
	return &FailoverState{
		PolicyID:            policyID,
		ActivePathID:        primary,
		UsingPrimary:        true,
		PrimaryHealthySince: &healthy,
	}
}

// CanFailback reports whether the primary has been continuously
// healthy for at least delay as of now.
func (s *FailoverState) CanFailback(delay time.Duration, now time.Time) bool {
	if s.PrimaryHealthySince == nil {
		return false
	}
	return now.Sub(*s.PrimaryHealthySince) >= delay
}

// RecordFailover moves the active path to a backup.
func (s *FailoverState) RecordFailover(backup PathID, now time.Time) {
	s.ActivePathID = backup
	s.UsingPrimary = false
	t := now
	s.LastFailover = &t
	s.FailoverCount++
	s.PrimaryHealthySince = nil
}

// RecordFailback moves the active path back to the primary.
func (s *FailoverState) RecordFailback(primary PathID, now time.Time) {
	s.ActivePathID = primary
	s.UsingPrimary = true
	t := now
	s.LastFailover = &t
	s.FailoverCount++
}

// MarkPrimaryHealthy starts the failback clock if it is not already
// running. Repeated calls keep the original timestamp.
func (s *FailoverState) MarkPrimaryHealthy(now time.Time) {
	if s.PrimaryHealthySince == nil {
		t := now
		s.PrimaryHealthySince = &t
	}
}

// MarkPrimaryUnhealthy resets the failback clock.
func (s *FailoverState) MarkPrimaryUnhealthy() {
	s.PrimaryHealthySince = nil
}

// FailoverEventType classifies audit events.
type FailoverEventType string

const (
	EventTriggered      FailoverEventType = "triggered"
	EventCompleted      FailoverEventType = "completed"
	EventFailed         FailoverEventType = "failed"
	EventPolicyEnabled  FailoverEventType = "policy_enabled"
	EventPolicyDisabled FailoverEventType = "policy_disabled"
)

// FailoverEvent is an immutable audit record, written once per
// transition and never mutated. FromPathID/ToPathID are zero when the
// event did not move traffic.
type FailoverEvent struct {
	EventID            string
	PolicyID           uint64
	Type               FailoverEventType
	FromPathID         PathID
	ToPathID           PathID
	Reason             string
	PrimaryHealthScore float64
	BackupHealthScore  float64
	Timestamp          time.Time
}

// IsStateChange reports whether the event moved traffic.
func (e *FailoverEvent) IsStateChange() bool {
	return e.Type == EventTriggered || e.Type == EventCompleted
}
