package bus

// QueueOptions describes a queue declaration.
// Patterns are bound to the queue when it is declared.
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Patterns   []string
}

// PublishOptions controls a single publish.
// An empty MessageID lets the broker assign one.
type PublishOptions struct {
	MessageID string
	Headers   map[string]string
}
