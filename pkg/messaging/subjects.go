package messaging

// ProductEventsSubject is the JetStream subject product change events are published to.
const ProductEventsSubject = "products.events"
