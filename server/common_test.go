package server

import (
	"fmt"
	"io/ioutil"
	"sync"

	"github.com/driftlog/driftlog/server/logger"
)

type dummyLogger struct {
	sync.Mutex
	msg string
}

func (d *dummyLogger) logf(format string, args ...interface{}) {
	d.Lock()
	d.msg = fmt.Sprintf(format, args...)
	d.Unlock()
}

func (d *dummyLogger) log(args ...interface{}) {
	d.Lock()
	d.msg = fmt.Sprint(args...)
	d.Unlock()
}

func (d *dummyLogger) Infof(format string, args ...interface{})  { d.logf(format, args...) }
func (d *dummyLogger) Debugf(format string, args ...interface{}) { d.logf(format, args...) }
func (d *dummyLogger) Errorf(format string, args ...interface{}) { d.logf(format, args...) }
func (d *dummyLogger) Warnf(format string, args ...interface{})  { d.logf(format, args...) }
func (d *dummyLogger) Fatalf(format string, args ...interface{}) { d.logf(format, args...) }
func (d *dummyLogger) Debug(args ...interface{})                 { d.log(args...) }
func (d *dummyLogger) Warn(args ...interface{})                  { d.log(args...) }
func (d *dummyLogger) Info(args ...interface{})                  { d.log(args...) }
func (d *dummyLogger) Fatal(args ...interface{})                 { d.log(args...) }

func noopLogger() logger.Logger {
	l := logger.NewLogger(0)
	l.SetWriter(ioutil.Discard)
	return l
}

// memoryConfigStore is an in-memory ConfigStore used for deterministic
// tests. Published change notifications are delivered synchronously, in
// order, to the registered watch handler.
type memoryConfigStore struct {
	mu        sync.Mutex
	topics    map[string]struct{}
	configs   map[string]map[string]string
	handler   func(payload []byte)
	pending   [][]byte
	published int
}

func newMemoryConfigStore() *memoryConfigStore {
	return &memoryConfigStore{
		topics:  make(map[string]struct{}),
		configs: make(map[string]map[string]string),
	}
}

func configKey(entityType ConfigType, entityName string) string {
	return string(entityType) + "/" + entityName
}

func (m *memoryConfigStore) CreateTopic(topic string, partitions, replicationFactor int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[topic]; ok {
		return ErrTopicExists
	}
	m.topics[topic] = struct{}{}
	return nil
}

func (m *memoryConfigStore) TopicExists(topic string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.topics[topic]
	return ok, nil
}

func (m *memoryConfigStore) SetEntityConfig(entityType ConfigType, entityName string,
	props map[string]string) error {

	stored := make(map[string]string, len(props))
	for k, v := range props {
		stored[k] = v
	}
	m.mu.Lock()
	m.configs[configKey(entityType, entityName)] = stored
	m.mu.Unlock()
	return nil
}

func (m *memoryConfigStore) GetEntityConfig(entityType ConfigType, entityName string) (
	map[string]string, error) {

	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.configs[configKey(entityType, entityName)]
	if !ok {
		return map[string]string{}, nil
	}
	return props, nil
}

func (m *memoryConfigStore) PublishConfigChange(payload []byte) error {
	m.mu.Lock()
	m.published++
	handler := m.handler
	if handler == nil {
		m.pending = append(m.pending, payload)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	handler(payload)
	return nil
}

func (m *memoryConfigStore) WatchConfigChanges(handler func(payload []byte)) error {
	m.mu.Lock()
	m.handler = handler
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, payload := range pending {
		handler(payload)
	}
	return nil
}

func (m *memoryConfigStore) Close() error {
	return nil
}

func newTestConfig() *Config {
	config := NewDefaultConfig()
	config.LogSilent = true
	config.Clustering.BrokerID = 1
	return config
}

// newTestServer wires a server against an in-memory config store without
// starting NATS or a coordination session.
func newTestServer(config *Config) (*Server, *memoryConfigStore) {
	s := New(config)
	store := newMemoryConfigStore()
	s.configStore = store
	s.dynamicConfig = NewDynamicConfigManager(map[ConfigType]ConfigHandler{
		ConfigTypeTopic:  newTopicConfigHandler(s.logs, config.Log, s.logger),
		ConfigTypeClient: newClientConfigHandler(s.clientConfigs, s.logger),
	}, store, s.logger)
	return s, store
}
