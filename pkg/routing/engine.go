package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/meshroute/meshroute/pkg/events"
	"github.com/meshroute/meshroute/pkg/log"
	"github.com/meshroute/meshroute/pkg/types"
)

// ErrNoViablePath is returned when no registered path is usable for a
// flow. Callers decide whether to drop or to route on a default.
var ErrNoViablePath = errors.New("no viable path for flow")

// ErrPolicyNotFound is returned for operations on an unknown policy.
var ErrPolicyNotFound = errors.New("routing policy not found")

// HealthSource provides the current health of a path. Implemented by
// the health monitor.
type HealthSource interface {
	GetPathHealth(pathID types.PathID) (types.PathHealth, bool)
}

// FailoverResolver maps a path to the path currently carrying its
// traffic. Implemented by the failover engine.
type FailoverResolver interface {
	ActivePathFor(pathID types.PathID) types.PathID
}

// Config tunes the routing engine.
type Config struct {
	// FlowTTL is how long an idle flow binding is remembered.
	FlowTTL time.Duration

	// MaxFlows bounds the binding cache; least recently used flows
	// are evicted beyond it.
	MaxFlows int

	// StickinessMargin is how many score points a competing path must
	// beat the currently bound path by before a flow is moved.
	StickinessMargin float64
}

// DefaultConfig returns the routing defaults: 5 minute flow TTL,
// 65536 tracked flows, 5 point stickiness margin.
func DefaultConfig() Config {
	return Config{
		FlowTTL:          5 * time.Minute,
		MaxFlows:         65536,
		StickinessMargin: 5.0,
	}
}

// binding pins a flow to a path, remembering the score it was bound
// at for stickiness comparisons.
type binding struct {
	pathID types.PathID
	score  float64
}

// Engine selects paths for flows by matching routing policies and
// scoring candidate paths on live health. Selections are sticky per
// flow until invalidated by a failover, a policy change, or the
// bound path going down.
type Engine struct {
	cfg      Config
	health   HealthSource
	failover FailoverResolver
	broker   *events.Broker

	mu       sync.RWMutex
	policies []*types.RoutingPolicy
	paths    map[types.PathID]types.Path

	flows *expirable.LRU[types.FlowKey, binding]
}

// NewEngine creates a routing engine. failover and broker may be nil.
func NewEngine(cfg Config, health HealthSource, failover FailoverResolver, broker *events.Broker) *Engine {
	return &Engine{
		cfg:      cfg,
		health:   health,
		failover: failover,
		broker:   broker,
		paths:    make(map[types.PathID]types.Path),
		flows:    expirable.NewLRU[types.FlowKey, binding](cfg.MaxFlows, nil, cfg.FlowTTL),
	}
}

// RegisterPath makes a path a selection candidate.
func (e *Engine) RegisterPath(path types.Path) error {
	if err := path.Validate(); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	e.mu.Lock()
	e.paths[path.ID] = path
	e.mu.Unlock()
	return nil
}

// UnregisterPath removes a path and drops any flows bound to it.
func (e *Engine) UnregisterPath(pathID types.PathID) {
	e.mu.Lock()
	delete(e.paths, pathID)
	e.mu.Unlock()
	e.invalidatePath(pathID)
}

// AddPolicy validates and registers a routing policy. Policies are
// matched in ascending priority order; equal priorities tie-break on
// the lower policy ID. All flow bindings are invalidated.
func (e *Engine) AddPolicy(policy *types.RoutingPolicy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid routing policy: %w", err)
	}

	e.mu.Lock()
	replaced := false
	for i, p := range e.policies {
		if p.ID == policy.ID {
			e.policies[i] = policy
			replaced = true
			break
		}
	}
	if !replaced {
		e.policies = append(e.policies, policy)
	}
	sort.SliceStable(e.policies, func(i, j int) bool {
		if e.policies[i].Priority != e.policies[j].Priority {
			return e.policies[i].Priority < e.policies[j].Priority
		}
		return e.policies[i].ID < e.policies[j].ID
	})
	e.mu.Unlock()

	e.flows.Purge()

	logger := log.Component("routing")
	logger.Info().
		Uint64("policy_id", policy.ID).
		Str("policy_name", policy.Name).
		Uint32("priority", policy.Priority).
		Msg("routing policy added")
	return nil
}

// RemovePolicy unregisters a routing policy and invalidates all flow
// bindings.
func (e *Engine) RemovePolicy(policyID uint64) error {
	e.mu.Lock()
	found := false
	for i, p := range e.policies {
		if p.ID == policyID {
			e.policies = append(e.policies[:i], e.policies[i+1:]...)
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return ErrPolicyNotFound
	}

	e.flows.Purge()
	logger := log.Component("routing")
	logger.Info().Uint64("policy_id", policyID).Msg("routing policy removed")
	return nil
}

// GetPolicy returns a copy of one policy.
func (e *Engine) GetPolicy(policyID uint64) (types.RoutingPolicy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.policies {
		if p.ID == policyID {
			return *p, true
		}
	}
	return types.RoutingPolicy{}, false
}

// ListPolicies returns copies of all policies in match order.
func (e *Engine) ListPolicies() []types.RoutingPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.RoutingPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, *p)
	}
	return out
}

// SelectPath picks the path for a flow.
//
// The first enabled policy whose match rules cover the flow supplies
// the scoring weights; flows matched by no policy score with the
// balanced preset. Among usable paths the highest score wins, ties
// breaking on the lower path ID. A flow already bound to a usable
// path keeps it unless a competitor beats it by the stickiness
// margin. The returned path is resolved through any active failover,
// so callers always get the path that is actually carrying traffic.
func (e *Engine) SelectPath(flow types.FlowKey) (types.PathID, error) {
	weights := e.weightsFor(flow)

	e.mu.RLock()
	type candidate struct {
		id    types.PathID
		score float64
	}
	candidates := make([]candidate, 0, len(e.paths))
	for id, path := range e.paths {
		h, ok := e.health.GetPathHealth(id)
		if !ok || !h.IsUsable() {
			continue
		}
		candidates = append(candidates, candidate{id: id, score: scorePath(h, path, weights)})
	}
	e.mu.RUnlock()

	if len(candidates) == 0 {
		return 0, ErrNoViablePath
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score || (c.score == best.score && c.id < best.id) {
			best = c
		}
	}

	// Stickiness: an existing binding to a still-usable path holds
	// unless the best candidate clears the margin.
	if bound, ok := e.flows.Get(flow); ok && bound.pathID != best.id {
		for _, c := range candidates {
			if c.id != bound.pathID {
				continue
			}
			if best.score <= c.score+e.cfg.StickinessMargin {
				best = c
			}
			break
		}
	}

	e.flows.Add(flow, binding{pathID: best.id, score: best.score})

	selected := best.id
	if e.failover != nil {
		selected = e.failover.ActivePathFor(selected)
	}
	return selected, nil
}

// weightsFor finds the scoring weights for a flow from the first
// matching enabled policy, falling back to the balanced preset.
func (e *Engine) weightsFor(flow types.FlowKey) types.ScoringWeights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.policies {
		if p.Enabled && p.Match.Matches(flow) {
			return p.Weights
		}
	}
	return types.BalancedWeights()
}

// MatchingPolicy returns the policy that would govern a flow, if any.
func (e *Engine) MatchingPolicy(flow types.FlowKey) (types.RoutingPolicy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.policies {
		if p.Enabled && p.Match.Matches(flow) {
			return *p, true
		}
	}
	return types.RoutingPolicy{}, false
}

// FlowCount reports how many flows currently hold bindings.
func (e *Engine) FlowCount() int {
	return e.flows.Len()
}

// InvalidateAll drops every flow binding.
func (e *Engine) InvalidateAll() {
	e.flows.Purge()
}

// invalidatePath drops bindings pinned to one path.
func (e *Engine) invalidatePath(pathID types.PathID) {
	for _, key := range e.flows.Keys() {
		if bound, ok := e.flows.Peek(key); ok && bound.pathID == pathID {
			e.flows.Remove(key)
		}
	}
}

// Start subscribes to failover events and invalidates affected flow
// bindings until ctx is cancelled. It returns immediately; without a
// broker it is a no-op.
func (e *Engine) Start(ctx context.Context) {
	if e.broker == nil {
		return
	}
	sub := e.broker.Subscribe()
	go func() {
		defer e.broker.Unsubscribe(sub)
		logger := log.Component("routing")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev == nil || !ev.IsStateChange() {
					continue
				}
				e.invalidatePath(ev.FromPathID)
				logger.Debug().
					Uint64("policy_id", ev.PolicyID).
					Str("from_path", ev.FromPathID.String()).
					Str("to_path", ev.ToPathID.String()).
					Msg("flow bindings invalidated after path switch")
			}
		}
	}()
}
