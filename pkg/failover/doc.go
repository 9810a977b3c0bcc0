/*
Package failover switches traffic between primary and backup paths
based on live health, with hysteresis to prevent flapping.

Each policy names a primary path, an ordered set of backups and two
thresholds. The engine fails over when the primary's health score
drops below the failover threshold, picking the healthiest qualifying
backup. It fails back only after the primary has held at or above the
failback threshold for the full failback delay. Keeping the failover
threshold strictly below the failback threshold gives a dead band in
which the active path never changes.

Every transition, and every attempt that could not complete, is
recorded as an audit event: persisted to the store and published on
the event broker for the routing engine and metrics to react to.
*/
package failover
