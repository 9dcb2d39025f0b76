package server

// ConfigStore is the coordination-service surface the broker relies on for
// durable entity configuration and for change notifications. Watch delivery
// preserves the coordination service's sequence order; the broker inherits
// that guarantee rather than re-deriving it.
type ConfigStore interface {
	EntityConfigSource

	// CreateTopic durably registers a topic with its partition count and
	// replication factor. It fails if the topic already exists.
	CreateTopic(topic string, partitions, replicationFactor int32) error

	// TopicExists indicates if the topic has been registered.
	TopicExists(topic string) (bool, error)

	// SetEntityConfig durably replaces the complete override set for the
	// entity. The stored set is always a full replacement, never a partial
	// patch.
	SetEntityConfig(entityType ConfigType, entityName string, props map[string]string) error

	// PublishConfigChange appends a change notification for watching brokers
	// to consume.
	PublishConfigChange(payload []byte) error

	// WatchConfigChanges starts delivering raw notification payloads to the
	// handler, one at a time, in publish order. The handler must not block on
	// long synchronous I/O.
	WatchConfigChanges(handler func(payload []byte)) error

	// Close tears down the coordination session.
	Close() error
}
