package manager

// Event represents a manager lifecycle event: a name, the local model id
// and optional fields. RequestID is set for events tied to one request.
type Event struct {
	Name      string
	ModelID   string
	RequestID string
	Fields    map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
