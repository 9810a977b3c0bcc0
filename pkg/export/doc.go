/*
Package export builds point-in-time views of path health and failover
state and renders them for operators and APIs.

The Snapshotter reads the live caches; the Aggregator computes
statistical summaries (averages, extremes, p95 latency, uptime) over
persisted history windows. Renderers turn either into JSON or aligned
plain text. Prometheus exposition lives in the metrics package, fed
from the same snapshots.
*/
package export
