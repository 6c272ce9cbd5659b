package domain

import "time"

// EventType classifies a container change for downstream consumers.
type EventType string

const (
	EventCreated   EventType = "CREATED"
	EventRenewed   EventType = "RENEWED"
	EventCancelled EventType = "CANCELLED"
)

// ContainerEvent is a change notification for one container.
type ContainerEvent struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	Container *Container `json:"container"`
	Timestamp time.Time  `json:"timestamp"`
}

// EventTypeFor classifies a container with derived values already computed.
// A DOWN container is cancelled; one never updated since creation is created.
func EventTypeFor(c *Container) EventType {
	switch {
	case c.Status == ContainerDown:
		return EventCancelled
	case c.CreatedAt.Equal(c.UpdatedAt):
		return EventCreated
	default:
		return EventRenewed
	}
}
