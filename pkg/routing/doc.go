/*
Package routing selects the best path for each traffic flow.

Policies match flows by protocol, prefix, port and application class,
and carry the scoring weights their traffic cares about: a VoIP policy
weights latency and jitter, a backup policy weights bandwidth. The
engine scores every usable path under the matching policy's weights
and binds the flow to the winner. Bindings are sticky: a flow keeps
its path until the path goes down, a failover moves it, the policy set
changes, or a competitor outscores it by a clear margin. Selection is
deterministic, with score ties broken by the lower path ID.
*/
package routing
