/*
Package types defines the core data structures shared across meshroute.

This package is the foundation of the data model. It defines:

  - Identifiers (PathID, SiteID, FlowKey)
  - Path definitions and measured health (Path, PathHealth, PathStatus)
  - Failover configuration and runtime state (FailoverPolicy,
    FailoverState, FailoverEvent)
  - Routing policies (RoutingPolicy, MatchRules, ScoringWeights,
    AppClass)

All types are designed to be:

  - Serializable: JSON round-trips for the storage layer
  - Comparable where used as map keys (PathID, FlowKey)
  - Validated: Validate methods enforce the structural invariants
    before any runtime state is created

# Invariants

PathHealth.Status is a pure function of its HealthScore (see
StatusForScore): Up at 80 and above, Degraded between 50 and 79, Down
below 50. HealthScore is always within [0,100].

FailoverPolicy requires FailoverThreshold < FailbackThreshold; the gap
is the hysteresis band preventing rapid oscillation between primary
and backup. The primary path can never appear in its own backup list.

# Thread Safety

Types here carry no locks. Shared instances are owned by the component
that created them (health cache by pkg/health, failover state by
pkg/failover) and exposed to readers as copies.
*/
package types
