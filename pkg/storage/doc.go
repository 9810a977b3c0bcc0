// Package storage persists path health history, failover policies and
// failover audit events to an embedded BoltDB database.
//
// The Store interface is the contract the routing core depends on;
// BoltStore is the only production implementation. Health snapshots
// and events are append-only and keyed by (id, timestamp) so that the
// time-window queries used by history and aggregation endpoints are
// single cursor scans. The store degrades observability, never
// correctness: callers treat write failures as log-and-continue.
package storage
