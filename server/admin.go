package server

import (
	"github.com/pkg/errors"
)

var (
	// ErrTopicExists is returned by CreateTopic when attempting to create a
	// topic that already exists.
	ErrTopicExists = errors.New("topic already exists")

	// ErrTopicNotFound is returned when a configuration change targets a
	// topic that does not exist.
	ErrTopicNotFound = errors.New("topic does not exist")
)

// adminAPI is the administrative entry point for topics and dynamic
// configuration. Changes are validated and written to the coordination
// service here; brokers converge by reacting to the resulting change
// notifications, never by being called directly.
type adminAPI struct {
	*Server
}

func newAdminAPI(s *Server) *adminAPI {
	return &adminAPI{Server: s}
}

// CreateTopic registers a new topic along with any initial configuration
// overrides. Partition logs pick the overrides up when they are created, so
// no change notification is published.
func (a *adminAPI) CreateTopic(topic string, partitions, replicationFactor int32,
	overrides map[string]string) error {

	if topic == "" {
		return errors.New("topic name is empty")
	}
	if partitions <= 0 {
		return errors.Errorf("invalid partition count %d", partitions)
	}
	if replicationFactor <= 0 {
		return errors.Errorf("invalid replication factor %d", replicationFactor)
	}
	if err := ValidateOverrides(overrides); err != nil {
		return err
	}
	if err := a.configStore.CreateTopic(topic, partitions, replicationFactor); err != nil {
		return err
	}
	if len(overrides) > 0 {
		if err := a.configStore.SetEntityConfig(ConfigTypeTopic, topic, overrides); err != nil {
			return err
		}
	}
	a.logger.Infof("Created topic %q with %d partitions, replication factor %d",
		topic, partitions, replicationFactor)
	return nil
}

// ChangeTopicConfig replaces the complete override set for an existing topic
// and publishes a change notification for brokers to converge on. Changing a
// topic that does not exist fails with ErrTopicNotFound and leaves no state
// behind.
func (a *adminAPI) ChangeTopicConfig(topic string, props map[string]string) error {
	if err := ValidateOverrides(props); err != nil {
		return err
	}
	exists, err := a.configStore.TopicExists(topic)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(ErrTopicNotFound, "cannot change config of topic %q", topic)
	}
	if err := a.configStore.SetEntityConfig(ConfigTypeTopic, topic, props); err != nil {
		return err
	}
	return a.publishConfigChange(ConfigTypeTopic, topic)
}

// ChangeClientConfig replaces the complete override set for a client id and
// publishes a change notification.
func (a *adminAPI) ChangeClientConfig(clientID string, props map[string]string) error {
	if clientID == "" {
		return errors.New("client id is empty")
	}
	if err := a.configStore.SetEntityConfig(ConfigTypeClient, clientID, props); err != nil {
		return err
	}
	return a.publishConfigChange(ConfigTypeClient, clientID)
}

func (a *adminAPI) publishConfigChange(entityType ConfigType, entityName string) error {
	payload, err := encodeConfigChangeNotification(entityType, entityName)
	if err != nil {
		return err
	}
	if err := a.configStore.PublishConfigChange(payload); err != nil {
		return err
	}
	a.logger.Debugf("Published config change for %s %q", entityType, entityName)
	return nil
}
