package server

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/driftlog/driftlog/server/logger"
)

// configChangeVersion is the only supported schema version for config change
// notifications.
const configChangeVersion = 1

// ErrNotificationDecode is returned when a config change notification parses
// as JSON but violates the notification schema: missing or unsupported
// version, an entity type outside the fixed enumeration, or a missing entity
// name.
var ErrNotificationDecode = errors.New("invalid config change notification")

// ConfigType is the fixed enumeration of entity kinds eligible for dynamic
// configuration overrides. New kinds are added by extending the enumeration
// and registering a handler, not by changing decode logic.
type ConfigType string

const (
	// ConfigTypeTopic identifies per-topic configuration overrides.
	ConfigTypeTopic ConfigType = "topic"

	// ConfigTypeClient identifies per-client configuration overrides.
	ConfigTypeClient ConfigType = "client"
)

// configTypes is the set of valid entity types a notification may carry.
var configTypes = map[ConfigType]struct{}{
	ConfigTypeTopic:  {},
	ConfigTypeClient: {},
}

// ConfigChangeNotification is the payload published to the coordination
// service when an entity's configuration overrides change. It is ephemeral:
// consumed exactly once by the manager and never persisted.
type ConfigChangeNotification struct {
	Version    int        `json:"version"`
	EntityType ConfigType `json:"entity_type"`
	EntityName string     `json:"entity_name"`
}

// encodeConfigChangeNotification serializes a notification for the given
// entity at the current schema version.
func encodeConfigChangeNotification(entityType ConfigType, entityName string) ([]byte, error) {
	return json.Marshal(&ConfigChangeNotification{
		Version:    configChangeVersion,
		EntityType: entityType,
		EntityName: entityName,
	})
}

// decodeConfigChangeNotification parses a raw notification payload. Payloads
// that are not a JSON object return the raw unmarshal error; payloads that
// parse but violate the schema return an error wrapping
// ErrNotificationDecode. Unknown extra keys are ignored.
func decodeConfigChangeNotification(payload []byte) (*ConfigChangeNotification, error) {
	var n ConfigChangeNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, err
	}
	if n.Version != configChangeVersion {
		return nil, errors.Wrapf(ErrNotificationDecode,
			"unsupported notification version %d", n.Version)
	}
	if _, ok := configTypes[n.EntityType]; !ok {
		return nil, errors.Wrapf(ErrNotificationDecode,
			"unknown entity type %q", n.EntityType)
	}
	if n.EntityName == "" {
		return nil, errors.Wrap(ErrNotificationDecode, "entity name is missing")
	}
	return &n, nil
}

// ConfigHandler applies a full override set to one entity. Implementations
// must be idempotent and must only swap in-memory state so they are safe to
// invoke from the notification callback context.
type ConfigHandler interface {
	ProcessConfigChanges(entityName string, props map[string]string) error
}

// EntityConfigSource reads the complete current override set for an entity
// from the coordination service.
type EntityConfigSource interface {
	GetEntityConfig(entityType ConfigType, entityName string) (map[string]string, error)
}

// DynamicConfigManager is the sole consumer of configuration change
// notifications. It routes each decoded notification to the handler
// registered for its entity type exactly once. The manager owns no mutable
// domain state; the handler registry is fixed at construction.
type DynamicConfigManager struct {
	handlers map[ConfigType]ConfigHandler
	configs  EntityConfigSource
	logger   logger.Logger
}

// NewDynamicConfigManager creates a DynamicConfigManager dispatching to the
// given handlers. The handler map is copied, so later mutation by the caller
// has no effect.
func NewDynamicConfigManager(handlers map[ConfigType]ConfigHandler,
	configs EntityConfigSource, l logger.Logger) *DynamicConfigManager {

	registry := make(map[ConfigType]ConfigHandler, len(handlers))
	for entityType, handler := range handlers {
		registry[entityType] = handler
	}
	return &DynamicConfigManager{
		handlers: registry,
		configs:  configs,
		logger:   l,
	}
}

// ProcessNotification handles one raw change notification. Empty or
// non-JSON payloads are logged and ignored for compatibility with legacy
// notification formats. Schema violations and handler failures are returned
// to the caller, which is expected to log them and continue with the next
// notification; they never affect the manager's routing state.
func (m *DynamicConfigManager) ProcessNotification(payload []byte) error {
	if len(payload) == 0 {
		m.logger.Debug("Ignoring empty config change notification")
		return nil
	}

	n, err := decodeConfigChangeNotification(payload)
	if err != nil {
		if errors.Cause(err) == ErrNotificationDecode {
			return err
		}
		m.logger.Warnf("Ignoring unparseable config change notification %q: %v", payload, err)
		return nil
	}

	handler, ok := m.handlers[n.EntityType]
	if !ok {
		// A valid entity type with no registered handler is the forward
		// compatibility path, not an error.
		m.logger.Debugf("No handler registered for config entity type %q, ignoring change for %q",
			n.EntityType, n.EntityName)
		return nil
	}

	props, err := m.configs.GetEntityConfig(n.EntityType, n.EntityName)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch config for %s %q",
			n.EntityType, n.EntityName)
	}

	if err := handler.ProcessConfigChanges(n.EntityName, props); err != nil {
		return errors.Wrapf(err, "failed to apply config change for %s %q",
			n.EntityType, n.EntityName)
	}

	m.logger.Debugf("Applied config change for %s %q", n.EntityType, n.EntityName)
	return nil
}
