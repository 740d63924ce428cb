package events

// Topic constants for domain events emitted by the checkout service.
const (
	TopicCheckoutStarted   = "checkout.started"
	TopicCheckoutAbandoned = "checkout.abandoned"
	TopicOrderPlaced       = "order.placed"
)

// DefaultTopics returns the canonical list of topics that support webhook delivery.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutStarted,
		TopicCheckoutAbandoned,
		TopicOrderPlaced,
	}
}

// Deliverable reports whether events of the topic are fanned out to webhooks.
func Deliverable(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
