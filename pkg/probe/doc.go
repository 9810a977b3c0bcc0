// Package probe measures round-trip time, jitter and packet loss
// against a path's remote target.
//
// A Prober issues a single bounded-timeout probe; Run fans a
// configurable number of probes at one target and aggregates the
// outcomes into a Result. A probe that times out or cannot reach the
// target contributes a loss sample; it is not an error of the
// monitoring system.
package probe
