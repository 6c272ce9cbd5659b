package redis

const (
	// KeyEventStream is the stream container events are appended to
	KeyEventStream = "apicatalog:events"
	// KeyPrefixContainer is the prefix for the latest snapshot of each container
	KeyPrefixContainer = "apicatalog:container:"
	// KeyAllContainers is the key for the set of all published container IDs
	KeyAllContainers = "apicatalog:containers:all"
)

// EventStreamKey returns the Redis key of the event stream
func EventStreamKey() string {
	return KeyEventStream
}

// ContainerKey returns the Redis key for a container snapshot by ID
func ContainerKey(id string) string {
	return KeyPrefixContainer + id
}

// AllContainersKey returns the key for the set of all container IDs
func AllContainersKey() string {
	return KeyAllContainers
}
