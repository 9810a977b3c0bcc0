/*
Package metrics provides Prometheus metrics collection and exposition.

All gauges are defined and registered at package init against the
default registry and exposed via the promhttp handler. The Collector
feeds them on a fixed cadence from state snapshots: per-path health
(score, latency, loss, jitter, status), per-policy failover state and
the routing engine's tracked flow count.

The package also carries the daemon's status board behind the
/health, /ready and /live endpoints. Subsystems report their condition
as they run; a loop that stops reporting goes stale and fails the
health check.
*/
package metrics
