/*
Package health produces the continuously refreshed quality signal the
failover and routing engines act on.

Each check cycle probes every registered path (fan-out, unordered),
aggregates the round into latency/jitter/loss, converts it to a 0-100
health score and overwrites the in-memory cache entry. The cache is
the authoritative live source; every Nth cycle it is also appended to
the persistent store for history and aggregation queries.

# Scoring

Score = 100 - latencyPenalty - jitterPenalty - lossPenalty, clamped to
[0,100]. The default weighting is ~40% latency, 30% jitter, 30% loss;
see Thresholds. Status follows the fixed score bands defined in
pkg/types: Up at 80+, Degraded at 50-79, Down below 50.

# Failure semantics

Probe timeouts and unreachable targets are loss samples, not monitor
errors. Store write failures are logged and swallowed; a slow or
broken database degrades observability, never live decisions.
*/
package health
