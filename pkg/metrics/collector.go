package metrics

import (
	"strconv"
	"time"

	"github.com/meshroute/meshroute/pkg/export"
	"github.com/meshroute/meshroute/pkg/types"
)

// FlowCounter reports active flow bindings. Implemented by the
// routing engine.
type FlowCounter interface {
	FlowCount() int
}

// Collector feeds the Prometheus gauges from periodic state snapshots.
type Collector struct {
	snapshotter *export.Snapshotter
	flows       FlowCounter
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCollector creates a metrics collector. flows may be nil.
func NewCollector(snapshotter *export.Snapshotter, flows FlowCounter) *Collector {
	return &Collector{
		snapshotter: snapshotter,
		flows:       flows,
		interval:    15 * time.Second,
		stopCh:      make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect takes one snapshot and updates every gauge.
func (c *Collector) Collect() {
	c.collectPathMetrics()
	c.collectFailoverMetrics()

	if c.flows != nil {
		FlowsTracked.Set(float64(c.flows.FlowCount()))
	}
}

func (c *Collector) collectPathMetrics() {
	snap := c.snapshotter.HealthSnapshot()

	for _, p := range snap.Paths {
		id := p.PathID.String()
		PathHealthScore.WithLabelValues(id).Set(p.HealthScore)
		PathLatency.WithLabelValues(id).Set(p.LatencyMs)
		PathPacketLoss.WithLabelValues(id).Set(p.PacketLossPct)
		PathJitter.WithLabelValues(id).Set(p.JitterMs)
		PathStatus.WithLabelValues(id).Set(statusValue(types.PathStatus(p.Status)))
	}
}

func (c *Collector) collectFailoverMetrics() {
	snap := c.snapshotter.FailoverSnapshot()

	enabled, disabled := 0, 0
	for _, p := range snap.Policies {
		if p.Enabled {
			enabled++
		} else {
			disabled++
		}

		id := strconv.FormatUint(p.PolicyID, 10)
		onPrimary := 0.0
		if p.UsingPrimary {
			onPrimary = 1.0
		}
		FailoverUsingPrimary.WithLabelValues(id, p.Name).Set(onPrimary)
		FailoverCount.WithLabelValues(id, p.Name).Set(float64(p.FailoverCount))
	}
	FailoverPoliciesTotal.WithLabelValues("true").Set(float64(enabled))
	FailoverPoliciesTotal.WithLabelValues("false").Set(float64(disabled))
}

func statusValue(status types.PathStatus) float64 {
	switch status {
	case types.PathStatusUp:
		return 1.0
	case types.PathStatusDegraded:
		return 0.5
	default:
		return 0.0
	}
}
