package bus

// Event is anything that knows the routing key it is published under.
type Event interface{ Topic() string }
