package server

import (
	"sync"

	"github.com/driftlog/driftlog/server/logger"
)

// topicConfigHandler recomputes the effective log configuration for every
// hosted partition log of a topic when its overrides change.
type topicConfigHandler struct {
	logs     *logRegistry
	defaults LogConfig
	logger   logger.Logger
}

func newTopicConfigHandler(logs *logRegistry, defaults LogConfig, l logger.Logger) *topicConfigHandler {
	return &topicConfigHandler{logs: logs, defaults: defaults, logger: l}
}

// ProcessConfigChanges applies the complete override set for the topic on top
// of the broker defaults and swaps the result into every partition log of the
// topic. A topic with no hosted logs is a no-op. Re-applying identical
// properties yields identical state.
func (h *topicConfigHandler) ProcessConfigChanges(entityName string, props map[string]string) error {
	config, err := h.defaults.WithOverrides(props)
	if err != nil {
		return err
	}
	logs := h.logs.GetTopic(entityName)
	if len(logs) == 0 {
		h.logger.Debugf("No partition logs for topic %q, ignoring config change", entityName)
		return nil
	}
	for _, l := range logs {
		l.SwapConfig(config)
	}
	h.logger.Infof("Updated configuration of %d partition logs for topic %q, retention: %s",
		len(logs), entityName, config.RetentionString())
	return nil
}

// ClientConfigPool holds the current configuration override set for each
// client id. Stored sets are complete replacements and are never mutated
// after insertion, so concurrent readers observe either the old or the new
// complete set.
type ClientConfigPool struct {
	mu      sync.RWMutex
	configs map[string]map[string]string
}

// NewClientConfigPool creates an empty ClientConfigPool.
func NewClientConfigPool() *ClientConfigPool {
	return &ClientConfigPool{configs: make(map[string]map[string]string)}
}

// Get returns the current override set for the given client id. The returned
// map must be treated as read-only.
func (p *ClientConfigPool) Get(clientID string) (map[string]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	props, ok := p.configs[clientID]
	return props, ok
}

// Count returns the number of client ids with overrides.
func (p *ClientConfigPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.configs)
}

func (p *ClientConfigPool) set(clientID string, props map[string]string) {
	// Copy so the stored set stays immutable.
	stored := make(map[string]string, len(props))
	for k, v := range props {
		stored[k] = v
	}
	p.mu.Lock()
	p.configs[clientID] = stored
	p.mu.Unlock()
}

// clientConfigHandler replaces the pooled override set for a client id in
// full whenever its configuration changes.
type clientConfigHandler struct {
	pool   *ClientConfigPool
	logger logger.Logger
}

func newClientConfigHandler(pool *ClientConfigPool, l logger.Logger) *clientConfigHandler {
	return &clientConfigHandler{pool: pool, logger: l}
}

// ProcessConfigChanges replaces, not merges, the override set for the client.
func (h *clientConfigHandler) ProcessConfigChanges(entityName string, props map[string]string) error {
	h.pool.set(entityName, props)
	h.logger.Infof("Updated configuration for client %q with %d properties", entityName, len(props))
	return nil
}
