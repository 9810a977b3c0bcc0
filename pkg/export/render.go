package export

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Renderer turns snapshots and aggregates into a wire format.
type Renderer interface {
	RenderHealth(snap HealthSnapshot) ([]byte, error)
	RenderFailover(snap FailoverSnapshot) ([]byte, error)
	RenderAggregates(metrics []AggregatedMetrics) ([]byte, error)
}

// JSONRenderer renders snapshots as indented JSON, suitable for REST
// responses and CLI output.
type JSONRenderer struct{}

func (JSONRenderer) RenderHealth(snap HealthSnapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

func (JSONRenderer) RenderFailover(snap FailoverSnapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

func (JSONRenderer) RenderAggregates(metrics []AggregatedMetrics) ([]byte, error) {
	return json.MarshalIndent(metrics, "", "  ")
}

// TextRenderer renders snapshots as aligned plain-text tables for
// operator consoles.
type TextRenderer struct{}

func (TextRenderer) RenderHealth(snap HealthSnapshot) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "PATH HEALTH @ %s\n", snap.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%-8s %-10s %10s %8s %10s %8s\n",
		"PATH", "STATUS", "LATENCY", "JITTER", "LOSS", "SCORE")
	for _, p := range snap.Paths {
		fmt.Fprintf(&b, "%-8s %-10s %8.1fms %6.1fms %9.1f%% %8.1f\n",
			p.PathID, p.Status, p.LatencyMs, p.JitterMs, p.PacketLossPct, p.HealthScore)
	}
	return []byte(b.String()), nil
}

func (TextRenderer) RenderFailover(snap FailoverSnapshot) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "FAILOVER POLICIES @ %s\n", snap.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%-6s %-20s %-8s %-8s %-10s %s\n",
		"ID", "NAME", "PRIMARY", "ACTIVE", "ON", "FAILOVERS")
	for _, p := range snap.Policies {
		onPath := "backup"
		if p.UsingPrimary {
			onPath = "primary"
		}
		if !p.Enabled {
			onPath = "disabled"
		}
		fmt.Fprintf(&b, "%-6d %-20s %-8s %-8s %-10s %d\n",
			p.PolicyID, p.Name, p.PrimaryPathID, p.ActivePathID, onPath, p.FailoverCount)
	}
	return []byte(b.String()), nil
}

func (TextRenderer) RenderAggregates(metrics []AggregatedMetrics) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %-8s %8s %10s %10s %8s %8s %8s\n",
		"PATH", "PERIOD", "SAMPLES", "LAT AVG", "LAT P95", "LOSS", "SCORE", "UPTIME")
	for _, m := range metrics {
		fmt.Fprintf(&b, "%-8s %-8s %8d %8.1fms %8.1fms %7.1f%% %8.1f %7.1f%%\n",
			m.PathID, m.Period, m.SampleCount, m.LatencyAvg, m.LatencyP95,
			m.PacketLossAvg, m.ScoreAvg, m.UptimePct)
	}
	return []byte(b.String()), nil
}
