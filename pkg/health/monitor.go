package health

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/meshroute/meshroute/pkg/log"
	"github.com/meshroute/meshroute/pkg/metrics"
	"github.com/meshroute/meshroute/pkg/probe"
	"github.com/meshroute/meshroute/pkg/storage"
	"github.com/meshroute/meshroute/pkg/types"
)

// Config tunes the health monitor.
type Config struct {
	// CheckInterval is the cadence of the background check cycle.
	CheckInterval time.Duration

	// ProbesPerCheck is how many probes one check issues per path.
	ProbesPerCheck int

	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration

	// ProbeGap is the delay between consecutive probes to one target.
	ProbeGap time.Duration

	// PersistEvery persists a cache snapshot every N check cycles.
	PersistEvery int

	// Thresholds configure the scoring model.
	Thresholds Thresholds
}

// DefaultConfig returns the monitor defaults: 10s cycles, 5 probes per
// check with a 1s timeout, persistence every 10th cycle.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  10 * time.Second,
		ProbesPerCheck: 5,
		ProbeTimeout:   time.Second,
		ProbeGap:       200 * time.Millisecond,
		PersistEvery:   10,
		Thresholds:     DefaultThresholds(),
	}
}

// Monitor continuously measures every registered path and keeps the
// authoritative in-memory health cache. Snapshots are persisted
// periodically for history queries; a failing store degrades history,
// never the cache.
type Monitor struct {
	cfg    Config
	prober probe.Prober
	store  storage.Store
	scorer *Scorer
	clk    clock.Clock

	mu      sync.RWMutex
	targets map[types.PathID]string
	cache   map[types.PathID]types.PathHealth

	cycles int
}

// NewMonitor creates a health monitor. The store may be nil, in which
// case history is unavailable but monitoring works normally.
func NewMonitor(cfg Config, prober probe.Prober, store storage.Store, clk clock.Clock) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		cfg:     cfg,
		prober:  prober,
		store:   store,
		scorer:  NewScorer(cfg.Thresholds),
		clk:     clk,
		targets: make(map[types.PathID]string),
		cache:   make(map[types.PathID]types.PathHealth),
	}
}

// RegisterPath adds a path to the monitoring set.
func (m *Monitor) RegisterPath(id types.PathID, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[id] = target
}

// UnregisterPath removes a path and drops its cached health.
func (m *Monitor) UnregisterPath(id types.PathID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, id)
	delete(m.cache, id)
}

// CheckPathHealth probes target once and refreshes the cache entry for
// pathID. Probe losses are data; the only errors surfaced are context
// cancellations.
func (m *Monitor) CheckPathHealth(ctx context.Context, pathID types.PathID, target string) (types.PathHealth, error) {
	res, err := probe.Run(ctx, m.prober, target, probe.RoundConfig{
		Count:   m.cfg.ProbesPerCheck,
		Timeout: m.cfg.ProbeTimeout,
		Gap:     m.cfg.ProbeGap,
	})
	if err != nil {
		return types.PathHealth{}, err
	}

	score := m.scorer.Score(res.LatencyMs, res.PacketLossPct, res.JitterMs)
	health := types.PathHealth{
		PathID:        pathID,
		LatencyMs:     res.LatencyMs,
		PacketLossPct: res.PacketLossPct,
		JitterMs:      res.JitterMs,
		HealthScore:   score,
		Status:        types.StatusForScore(score),
		LastChecked:   m.clk.Now(),
	}

	m.mu.Lock()
	m.cache[pathID] = health
	m.mu.Unlock()

	return health, nil
}

// GetPathHealth returns the cached health for a path. The second
// return is false if the path has never completed a check.
func (m *Monitor) GetPathHealth(pathID types.PathID) (types.PathHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.cache[pathID]
	return h, ok
}

// GetAllHealth returns a copy of the current cache.
func (m *Monitor) GetAllHealth() map[types.PathID]types.PathHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.PathID]types.PathHealth, len(m.cache))
	for id, h := range m.cache {
		out[id] = h
	}
	return out
}

// GetHistory queries persisted snapshots for a path, ordered by
// timestamp ascending. A zero until means now.
func (m *Monitor) GetHistory(pathID types.PathID, since, until time.Time) ([]types.PathHealth, error) {
	if m.store == nil {
		return nil, nil
	}
	if until.IsZero() {
		until = m.clk.Now()
	}
	return m.store.PathHealthRange(pathID, since, until)
}

// Stats summarises the cache by status.
type Stats struct {
	TotalPaths    int
	UpPaths       int
	DegradedPaths int
	DownPaths     int
}

// GetStats counts cached paths per status.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{TotalPaths: len(m.cache)}
	for _, h := range m.cache {
		switch h.Status {
		case types.PathStatusUp:
			s.UpPaths++
		case types.PathStatusDegraded:
			s.DegradedPaths++
		case types.PathStatusDown:
			s.DownPaths++
		}
	}
	return s
}

// Start launches the recurring check cycle. It returns immediately;
// the loop stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	logger := log.Component("health")
	ticker := m.clk.Ticker(m.cfg.CheckInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", m.cfg.CheckInterval).Msg("health monitoring started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("health monitoring stopped")
			return
		case <-ticker.C:
			m.runCycle(ctx, logger)
		}
	}
}

// runCycle checks every registered path concurrently and persists the
// cache on every PersistEvery'th cycle.
func (m *Monitor) runCycle(ctx context.Context, logger zerolog.Logger) {
	m.mu.RLock()
	targets := make(map[types.PathID]string, len(m.targets))
	for id, target := range m.targets {
		targets[id] = target
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for id, target := range targets {
		wg.Add(1)
		go func(id types.PathID, target string) {
			defer wg.Done()
			if _, err := m.CheckPathHealth(ctx, id, target); err != nil {
				logger.Warn().Err(err).Str("path_id", id.String()).Msg("health check aborted")
			}
		}(id, target)
	}
	wg.Wait()

	m.cycles++
	if m.store != nil && m.cfg.PersistEvery > 0 && m.cycles%m.cfg.PersistEvery == 0 {
		m.persistSnapshot(logger)
	}
	metrics.ReportHealthy("health")
}

// persistSnapshot appends every cached record to the store. Failures
// are logged and swallowed: the cache is the source of truth for live
// decisions. The storage component status follows the outcome.
func (m *Monitor) persistSnapshot(logger zerolog.Logger) {
	var lastErr error
	for _, h := range m.GetAllHealth() {
		if err := m.store.AppendPathHealth(h); err != nil {
			logger.Warn().Err(err).Str("path_id", h.PathID.String()).Msg("failed to persist health snapshot")
			lastErr = err
		}
	}
	if lastErr != nil {
		metrics.ReportUnhealthy("storage", lastErr.Error())
		return
	}
	metrics.ReportHealthy("storage")
}
