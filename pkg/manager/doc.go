/*
Package manager composes the routing core.

NewManager builds the store, event broker, health monitor, failover
engine, routing engine and exporters from one configuration, registers
the declared paths and policies, and restores persisted failover
policies. Start launches every background loop; Stop tears them down
and closes the store.
*/
package manager
