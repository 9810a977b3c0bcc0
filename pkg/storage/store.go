package storage

import (
	"time"

	"github.com/meshroute/meshroute/pkg/types"
)

// Store defines the persistence contract the routing core requires.
//
// Health snapshots and failover events are append-only; failover
// policies support CRUD. All writes are best-effort from the caller's
// perspective: the in-memory caches stay authoritative when the store
// fails, so implementations must never be required for correctness of
// live decisions.
type Store interface {
	// Path health history (append-only)
	AppendPathHealth(h types.PathHealth) error
	PathHealthRange(pathID types.PathID, since, until time.Time) ([]types.PathHealth, error)

	// Failover policies
	SaveFailoverPolicy(p *types.FailoverPolicy) error
	GetFailoverPolicy(id uint64) (*types.FailoverPolicy, error)
	ListFailoverPolicies() ([]*types.FailoverPolicy, error)
	DeleteFailoverPolicy(id uint64) error

	// Failover events (append-only)
	AppendFailoverEvent(e *types.FailoverEvent) error
	FailoverEventsRange(policyID uint64, since, until time.Time) ([]*types.FailoverEvent, error)

	// Utility
	Close() error
}
