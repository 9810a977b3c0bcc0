/*
Package events provides an in-memory broker for failover event pub/sub.

The broker fans failover state changes out to interested subscribers:
the routing engine invalidates flow bindings when a policy switches
paths, the metrics layer counts transitions, and the export layer can
stream an audit feed. Publishing never blocks the failover engine; a
subscriber that falls behind misses events rather than stalling
decisions.

# Usage

Creating and starting a broker:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			if event.IsStateChange() {
				handlePathSwitch(event)
			}
		}
	}()

Publishing:

	broker.Publish(&types.FailoverEvent{
		EventID:  uuid.NewString(),
		PolicyID: policy.ID,
		Type:     types.EventTriggered,
		Reason:   "primary health below threshold",
	})

Events are delivered to every subscriber; filter by Type on the
receiving side. Each subscriber channel buffers 50 events and delivery
is skipped when the buffer is full, so subscribers must drain promptly
if they need a complete feed.
*/
package events
