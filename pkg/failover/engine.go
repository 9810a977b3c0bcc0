package failover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/meshroute/meshroute/pkg/events"
	"github.com/meshroute/meshroute/pkg/log"
	"github.com/meshroute/meshroute/pkg/metrics"
	"github.com/meshroute/meshroute/pkg/storage"
	"github.com/meshroute/meshroute/pkg/types"
)

// ErrNoHealthyBackup is returned when a failover is due but no backup
// path scores at or above the policy's failover threshold. Traffic
// stays on the primary.
var ErrNoHealthyBackup = errors.New("no healthy backup path available")

// ErrPolicyNotFound is returned for operations on an unknown policy.
var ErrPolicyNotFound = errors.New("failover policy not found")

// HealthSource provides the current health of a path. Implemented by
// the health monitor.
type HealthSource interface {
	GetPathHealth(pathID types.PathID) (types.PathHealth, bool)
}

// Config tunes the failover engine.
type Config struct {
	// EvalInterval is the cadence of the policy evaluation loop.
	EvalInterval time.Duration
}

// DefaultConfig returns the engine defaults: evaluate every 5 seconds.
func DefaultConfig() Config {
	return Config{EvalInterval: 5 * time.Second}
}

// Engine evaluates failover policies against live path health and
// switches active paths with hysteresis. Every transition is appended
// to the audit log and published on the broker.
type Engine struct {
	cfg    Config
	store  storage.Store
	health HealthSource
	broker *events.Broker
	clk    clock.Clock

	mu       sync.RWMutex
	policies map[uint64]*types.FailoverPolicy
	states   map[uint64]*types.FailoverState
}

// NewEngine creates a failover engine. The store may be nil, in which
// case policies and events are not persisted.
func NewEngine(cfg Config, store storage.Store, health HealthSource, broker *events.Broker, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		health:   health,
		broker:   broker,
		clk:      clk,
		policies: make(map[uint64]*types.FailoverPolicy),
		states:   make(map[uint64]*types.FailoverState),
	}
}

// AddPolicy validates, persists and registers a policy, initialising
// its state on the primary path. The policy is persisted before it
// becomes active, so a store failure leaves the engine unchanged.
// Re-adding an existing policy ID replaces the policy and resets its
// state.
func (e *Engine) AddPolicy(policy *types.FailoverPolicy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid failover policy: %w", err)
	}

	if e.store != nil {
		if err := e.store.SaveFailoverPolicy(policy); err != nil {
			return fmt.Errorf("persist failover policy %d: %w", policy.ID, err)
		}
	}

	e.mu.Lock()
	e.policies[policy.ID] = policy
	e.states[policy.ID] = types.NewFailoverState(policy.ID, policy.PrimaryPathID, e.clk.Now())
	e.mu.Unlock()

	if policy.Enabled {
		e.emit(&types.FailoverEvent{
			PolicyID: policy.ID,
			Type:     types.EventPolicyEnabled,
			Reason:   fmt.Sprintf("policy %q added", policy.Name),
		})
	}

	logger := log.WithPolicy("failover", policy.ID)
	logger.Info().
		Str("policy_name", policy.Name).
		Str("primary_path", policy.PrimaryPathID.String()).
		Int("backups", len(policy.BackupPathIDs)).
		Msg("failover policy added")

	return nil
}

// RemovePolicy unregisters a policy and drops its state. Persisted
// audit events are retained.
func (e *Engine) RemovePolicy(policyID uint64) error {
	e.mu.Lock()
	_, ok := e.policies[policyID]
	delete(e.policies, policyID)
	delete(e.states, policyID)
	e.mu.Unlock()

	if !ok {
		return ErrPolicyNotFound
	}

	if e.store != nil {
		if err := e.store.DeleteFailoverPolicy(policyID); err != nil {
			return fmt.Errorf("delete failover policy %d: %w", policyID, err)
		}
	}

	e.emit(&types.FailoverEvent{
		PolicyID: policyID,
		Type:     types.EventPolicyDisabled,
		Reason:   "policy removed",
	})

	logger := log.WithPolicy("failover", policyID)
	logger.Info().Msg("failover policy removed")
	return nil
}

// EnablePolicy turns evaluation back on for a policy.
func (e *Engine) EnablePolicy(policyID uint64) error {
	return e.setEnabled(policyID, true)
}

// DisablePolicy stops evaluation for a policy. The active path is
// left as-is; the state keeps tracking where traffic sits.
func (e *Engine) DisablePolicy(policyID uint64) error {
	return e.setEnabled(policyID, false)
}

func (e *Engine) setEnabled(policyID uint64, enabled bool) error {
	e.mu.Lock()
	policy, ok := e.policies[policyID]
	if ok {
		policy.Enabled = enabled
	}
	e.mu.Unlock()

	if !ok {
		return ErrPolicyNotFound
	}

	if e.store != nil {
		if err := e.store.SaveFailoverPolicy(policy); err != nil {
			return fmt.Errorf("persist failover policy %d: %w", policyID, err)
		}
	}

	evType := types.EventPolicyEnabled
	reason := "policy enabled"
	if !enabled {
		evType = types.EventPolicyDisabled
		reason = "policy disabled"
	}
	e.emit(&types.FailoverEvent{PolicyID: policyID, Type: evType, Reason: reason})

	logger := log.WithPolicy("failover", policyID)
	logger.Info().Bool("enabled", enabled).Msg("failover policy toggled")
	return nil
}

// GetPolicy returns a copy of one policy.
func (e *Engine) GetPolicy(policyID uint64) (types.FailoverPolicy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[policyID]
	if !ok {
		return types.FailoverPolicy{}, false
	}
	return *p, true
}

// GetPolicies returns copies of all registered policies, ordered by ID.
func (e *Engine) GetPolicies() []types.FailoverPolicy {
	e.mu.RLock()
	out := make([]types.FailoverPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, *p)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetState returns a copy of the runtime state for a policy.
func (e *Engine) GetState(policyID uint64) (types.FailoverState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[policyID]
	if !ok {
		return types.FailoverState{}, false
	}
	return *s, true
}

// LoadPolicies restores persisted policies into the engine, used at
// startup. States are re-initialised on the primary path.
func (e *Engine) LoadPolicies() error {
	if e.store == nil {
		return nil
	}
	policies, err := e.store.ListFailoverPolicies()
	if err != nil {
		return fmt.Errorf("list failover policies: %w", err)
	}

	e.mu.Lock()
	for _, p := range policies {
		e.policies[p.ID] = p
		e.states[p.ID] = types.NewFailoverState(p.ID, p.PrimaryPathID, e.clk.Now())
	}
	e.mu.Unlock()

	logger := log.Component("failover")
	logger.Info().Int("policies", len(policies)).Msg("failover policies loaded")
	return nil
}

// Start launches the recurring evaluation loop. It returns
// immediately; the loop stops when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	logger := log.Component("failover")
	ticker := e.clk.Ticker(e.cfg.EvalInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", e.cfg.EvalInterval).Msg("failover evaluation started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("failover evaluation stopped")
			return
		case <-ticker.C:
			e.EvaluateAll()
		}
	}
}

// EvaluateAll evaluates every enabled policy once against current
// path health. Policy snapshots are taken under the lock; a failure
// in one policy does not block the others.
func (e *Engine) EvaluateAll() {
	e.mu.RLock()
	policies := make([]types.FailoverPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		if p.Enabled {
			policies = append(policies, *p)
		}
	}
	e.mu.RUnlock()

	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })

	for _, policy := range policies {
		if err := e.evaluatePolicy(policy); err != nil && !errors.Is(err, ErrNoHealthyBackup) {
			logger := log.WithPolicy("failover", policy.ID)
			logger.Error().Err(err).Msg("policy evaluation failed")
		}
	}

	metrics.ReportHealthy("failover")
}

// evaluatePolicy reads path health, advances the policy's state
// machine and emits the audit event for any transition. Only the
// state mutation runs under the lock; persistence and publishing
// happen after it is released.
func (e *Engine) evaluatePolicy(policy types.FailoverPolicy) error {
	primaryScore := 0.0
	if h, ok := e.health.GetPathHealth(policy.PrimaryPathID); ok {
		primaryScore = h.HealthScore
	}
	backupID, backupScore, haveBackup := e.selectBackup(&policy)
	now := e.clk.Now()

	event, err := e.applyTransition(policy, primaryScore, backupID, backupScore, haveBackup, now)
	if event == nil {
		return err
	}

	e.emit(event)

	logger := log.WithPolicy("failover", policy.ID)
	switch event.Type {
	case types.EventTriggered:
		logger.Warn().
			Str("from_path", event.FromPathID.String()).
			Str("to_path", event.ToPathID.String()).
			Float64("primary_health", primaryScore).
			Float64("backup_health", backupScore).
			Msg("failover triggered")
	case types.EventCompleted:
		logger.Info().
			Str("from_path", event.FromPathID.String()).
			Str("to_path", event.ToPathID.String()).
			Float64("primary_health", primaryScore).
			Msg("failback completed")
	case types.EventFailed:
		logger.Error().
			Float64("primary_health", primaryScore).
			Msg("failover aborted, no healthy backup")
	}
	return err
}

// applyTransition advances the state machine for one policy and
// returns the audit event describing the transition, if any. The
// policy argument is a snapshot; the registered policy is re-checked
// under the lock in case it was disabled or removed since.
func (e *Engine) applyTransition(policy types.FailoverPolicy, primaryScore float64, backupID types.PathID, backupScore float64, haveBackup bool, now time.Time) (*types.FailoverEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.policies[policy.ID]
	if !ok || !current.Enabled {
		return nil, nil
	}

	state, ok := e.states[policy.ID]
	if !ok {
		state = types.NewFailoverState(policy.ID, policy.PrimaryPathID, now)
		e.states[policy.ID] = state
	}

	if state.UsingPrimary {
		if !policy.ShouldFailover(primaryScore) {
			state.MarkPrimaryHealthy(now)
			return nil, nil
		}
		if !haveBackup {
			return &types.FailoverEvent{
				PolicyID:           policy.ID,
				Type:               types.EventFailed,
				FromPathID:         state.ActivePathID,
				Reason:             "no backup path at or above failover threshold",
				PrimaryHealthScore: primaryScore,
				Timestamp:          now,
			}, ErrNoHealthyBackup
		}
		fromPath := state.ActivePathID
		state.RecordFailover(backupID, now)
		return &types.FailoverEvent{
			PolicyID:           policy.ID,
			Type:               types.EventTriggered,
			FromPathID:         fromPath,
			ToPathID:           backupID,
			Reason:             fmt.Sprintf("primary health (%.1f) below threshold (%.1f)", primaryScore, policy.FailoverThreshold),
			PrimaryHealthScore: primaryScore,
			BackupHealthScore:  backupScore,
			Timestamp:          now,
		}, nil
	}

	if policy.ShouldFailback(primaryScore) {
		state.MarkPrimaryHealthy(now)
		if !state.CanFailback(policy.FailbackDelay, now) {
			return nil, nil
		}
		fromPath := state.ActivePathID
		state.RecordFailback(policy.PrimaryPathID, now)
		return &types.FailoverEvent{
			PolicyID:           policy.ID,
			Type:               types.EventCompleted,
			FromPathID:         fromPath,
			ToPathID:           policy.PrimaryPathID,
			Reason:             fmt.Sprintf("primary health (%.1f) at or above threshold (%.1f) for %s", primaryScore, policy.FailbackThreshold, policy.FailbackDelay),
			PrimaryHealthScore: primaryScore,
			Timestamp:          now,
		}, nil
	}

	state.MarkPrimaryUnhealthy()
	return nil, nil
}

// selectBackup picks the backup with the highest health score among
// those at or above the failover threshold. Ties break on the lower
// path ID so repeated evaluations with equal scores are stable.
func (e *Engine) selectBackup(policy *types.FailoverPolicy) (types.PathID, float64, bool) {
	var (
		bestID    types.PathID
		bestScore float64
		found     bool
	)
	for _, backupID := range policy.BackupPathIDs {
		h, ok := e.health.GetPathHealth(backupID)
		if !ok {
			continue
		}
		if h.HealthScore < policy.FailoverThreshold {
			continue
		}
		if !found || h.HealthScore > bestScore || (h.HealthScore == bestScore && backupID < bestID) {
			bestID = backupID
			bestScore = h.HealthScore
			found = true
		}
	}
	return bestID, bestScore, found
}

// emit stamps, persists and publishes one audit event. Storage
// failures degrade the audit trail, never the transition itself.
// Never call emit with e.mu held.
func (e *Engine) emit(event *types.FailoverEvent) {
	event.EventID = uuid.NewString()
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clk.Now()
	}

	if e.store != nil {
		if err := e.store.AppendFailoverEvent(event); err != nil {
			logger := log.WithPolicy("failover", event.PolicyID)
			logger.Warn().Err(err).Msg("failed to persist failover event")
		}
	}
	if e.broker != nil {
		e.broker.Publish(event)
	}
}

// ActivePathFor maps a path to the path currently carrying its
// traffic. If pathID is the primary of a policy that has failed over,
// the backup is returned; otherwise pathID is returned unchanged.
func (e *Engine) ActivePathFor(pathID types.PathID) types.PathID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, policy := range e.policies {
		if policy.PrimaryPathID != pathID || !policy.Enabled {
			continue
		}
		if state, ok := e.states[policy.ID]; ok && !state.UsingPrimary {
			return state.ActivePathID
		}
	}
	return pathID
}

// GetEvents queries the persisted audit trail for a policy in
// [since, until], ordered by timestamp ascending. A zero until means
// now.
func (e *Engine) GetEvents(policyID uint64, since, until time.Time) ([]*types.FailoverEvent, error) {
	if e.store == nil {
		return nil, nil
	}
	if until.IsZero() {
		until = e.clk.Now()
	}
	return e.store.FailoverEventsRange(policyID, since, until)
}
