package types

import (
	"fmt"
	"net/netip"
)

// PortRange is an inclusive destination port range.
type PortRange struct {
	Min uint16
	Max uint16
}

// Contains reports whether port falls inside the range.
func (r PortRange) Contains(port uint16) bool {
	return port >= r.Min && port <= r.Max
}

// MatchRules select which flows a routing policy applies to. Nil/zero
// fields match anything; all set fields must match.
type MatchRules struct {
	Protocol     *uint8
	SrcPrefix    *netip.Prefix
	DstPrefix    *netip.Prefix
	SrcPort      *uint16
	DstPortRange *PortRange
	DSCP         *uint8
	AppClass     AppClass // AppClassAny matches everything
}

// Matches reports whether a flow satisfies every set rule.
func (m MatchRules) Matches(flow FlowKey) bool {
	if m.Protocol != nil && flow.Protocol != *m.Protocol {
		return false
	}
	if m.SrcPrefix != nil && !m.SrcPrefix.Contains(flow.SrcIP) {
		return false
	}
	if m.DstPrefix != nil && !m.DstPrefix.Contains(flow.DstIP) {
		return false
	}
	if m.SrcPort != nil && flow.SrcPort != *m.SrcPort {
		return false
	}
	if m.DstPortRange != nil && !m.DstPortRange.Contains(flow.DstPort) {
		return false
	}
	if m.DSCP != nil && flow.DSCP != *m.DSCP {
		return false
	}
	if m.AppClass != AppClassAny && ClassifyFlow(flow.Protocol, flow.DstPort) != m.AppClass {
		return false
	}
	return true
}

// ScoringWeights weight the per-metric components of the path selection
// score. Weights should sum to 1.0.
type ScoringWeights struct {
	Latency   float64
	Jitter    float64
	Loss      float64
	Bandwidth float64
	Cost      float64
}

// Sum returns the total of all weights.
func (w ScoringWeights) Sum() float64 {
	return w.Latency + w.Jitter + w.Loss + w.Bandwidth + w.Cost
}

// LatencySensitiveWeights suit VoIP and video conferencing.
func LatencySensitiveWeights() ScoringWeights {
	return ScoringWeights{Latency: 0.5, Jitter: 0.3, Loss: 0.2}
}

// ThroughputFocusedWeights suit file transfers and backups.
func ThroughputFocusedWeights() ScoringWeights {
	return ScoringWeights{Latency: 0.1, Loss: 0.2, Bandwidth: 0.7}
}

// CostOptimizedWeights suit non-critical traffic.
func CostOptimizedWeights() ScoringWeights {
	return ScoringWeights{Latency: 0.2, Jitter: 0.1, Loss: 0.2, Cost: 0.5}
}

// BalancedWeights suit general traffic and the catch-all policy.
func BalancedWeights() ScoringWeights {
	return ScoringWeights{Latency: 0.3, Jitter: 0.2, Loss: 0.3, Bandwidth: 0.2}
}

// RoutingPolicy maps a class of flows to a path scoring preference.
// Policies are evaluated in ascending Priority order; first match wins.
type RoutingPolicy struct {
	ID       uint64
	Name     string
	Priority uint32 // lower value = higher precedence
	Match    MatchRules
	Weights  ScoringWeights
	Enabled  bool
}

// Validate checks the policy definition.
func (p *RoutingPolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("routing policy name is required")
	}
	sum := p.Weights.Sum()
	if sum <= 0 {
		return fmt.Errorf("routing policy %q: scoring weights must be positive", p.Name)
	}
	if sum > 1.0+1e-9 {
		return fmt.Errorf("routing policy %q: scoring weights sum to %.3f, expected at most 1.0", p.Name, sum)
	}
	if p.Match.DstPortRange != nil && p.Match.DstPortRange.Min > p.Match.DstPortRange.Max {
		return fmt.Errorf("routing policy %q: inverted destination port range", p.Name)
	}
	return nil
}

// AppClass is a coarse application classification derived from the
// protocol and destination port of a flow.
type AppClass string

const (
	AppClassAny          AppClass = ""
	AppClassVoIP         AppClass = "voip"
	AppClassVideo        AppClass = "video"
	AppClassWeb          AppClass = "web"
	AppClassEmail        AppClass = "email"
	AppClassFileTransfer AppClass = "file_transfer"
	AppClassBackup       AppClass = "backup"
	AppClassDatabase     AppClass = "database"
	AppClassOther        AppClass = "other"
)

// ClassifyFlow buckets a flow by well-known ports.
func ClassifyFlow(protocol uint8, dstPort uint16) AppClass {
	switch {
	case dstPort == 5060 || dstPort == 5061:
		return AppClassVoIP
	case protocol == ProtocolUDP && dstPort >= 16384 && dstPort <= 32767:
		return AppClassVoIP // RTP range
	case dstPort >= 3478 && dstPort <= 3481:
		return AppClassVideo // STUN/TURN
	case dstPort >= 8801 && dstPort <= 8810:
		return AppClassVideo
	case protocol == ProtocolTCP && (dstPort == 80 || dstPort == 443 || dstPort == 8080 || dstPort == 8443):
		return AppClassWeb
	case protocol == ProtocolTCP && (dstPort == 25 || dstPort == 465 || dstPort == 587 ||
		dstPort == 110 || dstPort == 995 || dstPort == 143 || dstPort == 993):
		return AppClassEmail
	case protocol == ProtocolTCP && (dstPort == 20 || dstPort == 21 || dstPort == 22 ||
		dstPort == 139 || dstPort == 445):
		return AppClassFileTransfer
	case protocol == ProtocolTCP && (dstPort == 3306 || dstPort == 5432 || dstPort == 27017 ||
		dstPort == 6379 || dstPort == 1433):
		return AppClassDatabase
	case protocol == ProtocolTCP && (dstPort == 873 || (dstPort >= 10000 && dstPort <= 10999)):
		return AppClassBackup
	default:
		return AppClassOther
	}
}

// RecommendedWeights returns the scoring preset suited to an
// application class.
func (c AppClass) RecommendedWeights() ScoringWeights {
	switch c {
	case AppClassVoIP, AppClassVideo:
		return LatencySensitiveWeights()
	case AppClassFileTransfer, AppClassBackup:
		return ThroughputFocusedWeights()
	case AppClassDatabase:
		return LatencySensitiveWeights()
	default:
		return BalancedWeights()
	}
}
