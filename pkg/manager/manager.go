package manager

import (
	"context"
	"fmt"
	"os"

	"github.com/meshroute/meshroute/pkg/config"
	"github.com/meshroute/meshroute/pkg/events"
	"github.com/meshroute/meshroute/pkg/export"
	"github.com/meshroute/meshroute/pkg/failover"
	"github.com/meshroute/meshroute/pkg/health"
	"github.com/meshroute/meshroute/pkg/log"
	"github.com/meshroute/meshroute/pkg/metrics"
	"github.com/meshroute/meshroute/pkg/probe"
	"github.com/meshroute/meshroute/pkg/routing"
	"github.com/meshroute/meshroute/pkg/storage"
	"github.com/meshroute/meshroute/pkg/types"
)

// Manager wires the routing core together: storage, health
// monitoring, failover, routing, events and metrics.
type Manager struct {
	siteID types.SiteID
	cfg    *config.Config

	store       storage.Store
	eventBroker *events.Broker
	monitor     *health.Monitor
	failover    *failover.Engine
	routing     *routing.Engine
	snapshotter *export.Snapshotter
	aggregator  *export.Aggregator
	collector   *metrics.Collector

	cancel context.CancelFunc
}

// NewManager builds all components from configuration. Declared paths
// and policies are registered before Start; persisted failover
// policies not present in the config are restored from the store.
func NewManager(cfg *config.Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	siteID, err := resolveSiteID(cfg.SiteID)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	eventBroker := events.NewBroker()

	healthCfg := health.DefaultConfig()
	healthCfg.CheckInterval = cfg.Health.CheckInterval
	healthCfg.ProbesPerCheck = cfg.Health.ProbesPerCheck
	healthCfg.ProbeTimeout = cfg.Health.ProbeTimeout
	healthCfg.ProbeGap = cfg.Health.ProbeGap
	healthCfg.PersistEvery = cfg.Health.PersistEvery
	monitor := health.NewMonitor(healthCfg, probe.NewUDPProber(), store, nil)

	failoverEngine := failover.NewEngine(
		failover.Config{EvalInterval: cfg.Failover.EvalInterval},
		store, monitor, eventBroker, nil,
	)

	routingEngine := routing.NewEngine(
		routing.Config{
			FlowTTL:          cfg.Routing.FlowTTL,
			MaxFlows:         cfg.Routing.MaxFlows,
			StickinessMargin: cfg.Routing.StickinessMargin,
		},
		monitor, failoverEngine, eventBroker,
	)

	snapshotter := export.NewSnapshotter(monitor, failoverEngine, nil)

	m := &Manager{
		siteID:      siteID,
		cfg:         cfg,
		store:       store,
		eventBroker: eventBroker,
		monitor:     monitor,
		failover:    failoverEngine,
		routing:     routingEngine,
		snapshotter: snapshotter,
		aggregator:  export.NewAggregator(store, nil),
		collector:   metrics.NewCollector(snapshotter, routingEngine),
	}

	if err := m.applyConfig(); err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}

// applyConfig registers everything the config declares.
func (m *Manager) applyConfig() error {
	for _, pc := range m.cfg.Paths {
		path := pc.Path()
		if err := path.Validate(); err != nil {
			return fmt.Errorf("path %d: %w", pc.ID, err)
		}
		m.monitor.RegisterPath(path.ID, path.Target)
		if err := m.routing.RegisterPath(path); err != nil {
			return err
		}
	}

	if err := m.failover.LoadPolicies(); err != nil {
		return err
	}
	for _, fc := range m.cfg.FailoverPolicies {
		if err := m.failover.AddPolicy(fc.FailoverPolicy()); err != nil {
			return err
		}
	}

	for _, rc := range m.cfg.RoutingPolicies {
		policy, err := rc.RoutingPolicy()
		if err != nil {
			return err
		}
		if err := m.routing.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

// Start launches every background loop. Components stop when Stop is
// called.
func (m *Manager) Start() {
	logger := log.Component("manager")
	logger.Info().
		Str("site_id", m.siteID.String()).
		Int("paths", len(m.cfg.Paths)).
		Msg("starting routing core")

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.eventBroker.Start()
	go m.countEvents(ctx)
	m.monitor.Start(ctx)
	m.failover.Start(ctx)
	m.routing.Start(ctx)
	m.collector.Start()

	// Track subsystems on the status board. The loops report in on
	// every cycle; a stalled loop goes stale and fails /health.
	metrics.TrackComponent("storage", 0)
	metrics.TrackComponent("health", 3*m.cfg.Health.CheckInterval)
	metrics.TrackComponent("failover", 3*m.cfg.Failover.EvalInterval)
	metrics.TrackComponent("routing", 0)
	for _, name := range []string{"storage", "health", "failover", "routing"} {
		metrics.ReportHealthy(name)
	}

	logger.Info().Msg("routing core started")
}

// Stop shuts down all background loops and closes the store.
func (m *Manager) Stop() error {
	logger := log.Component("manager")
	logger.Info().Msg("stopping routing core")

	if m.cancel != nil {
		m.cancel()
	}
	m.collector.Stop()
	m.eventBroker.Stop()
	return m.store.Close()
}

// countEvents feeds the failover event counter from the broker.
func (m *Manager) countEvents(ctx context.Context) {
	sub := m.eventBroker.Subscribe()
	defer m.eventBroker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			metrics.FailoverEventsTotal.WithLabelValues(string(event.Type)).Inc()
		}
	}
}

// SiteID returns this site's identifier.
func (m *Manager) SiteID() types.SiteID { return m.siteID }

// Monitor returns the health monitor.
func (m *Manager) Monitor() *health.Monitor { return m.monitor }

// Failover returns the failover engine.
func (m *Manager) Failover() *failover.Engine { return m.failover }

// Routing returns the routing engine.
func (m *Manager) Routing() *routing.Engine { return m.routing }

// Snapshotter returns the snapshot builder for exports.
func (m *Manager) Snapshotter() *export.Snapshotter { return m.snapshotter }

// Aggregator returns the history aggregator.
func (m *Manager) Aggregator() *export.Aggregator { return m.aggregator }

// Events returns the failover event broker.
func (m *Manager) Events() *events.Broker { return m.eventBroker }

func resolveSiteID(configured string) (types.SiteID, error) {
	if configured == "" {
		return types.NewSiteID(), nil
	}
	siteID, err := types.ParseSiteID(configured)
	if err != nil {
		return types.SiteID{}, fmt.Errorf("invalid site_id %q: %w", configured, err)
	}
	return siteID, nil
}
