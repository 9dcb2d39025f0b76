package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"github.com/driftlog/driftlog/server/logger"
)

const (
	zkConfigRoot   = "/config"
	zkChangesPath  = "/config/changes"
	zkTopicsPath   = "/brokers/topics"
	zkChangePrefix = "config_change_"

	// zkRetryWait is how long the watch loop backs off after a ZooKeeper
	// error before re-establishing the watch.
	zkRetryWait = time.Second
)

// zkEntityConfig is the JSON shape of a stored entity override set.
type zkEntityConfig struct {
	Version int               `json:"version"`
	Config  map[string]string `json:"config"`
}

// zkTopicMetadata is the JSON shape of a registered topic.
type zkTopicMetadata struct {
	Version           int   `json:"version"`
	Partitions        int32 `json:"partitions"`
	ReplicationFactor int32 `json:"replication_factor"`
}

// zkConfigStore implements ConfigStore on a ZooKeeper ensemble. Change
// notifications are sequential znodes under /config/changes consumed through
// a children watch; a cursor over the sequence numbers makes redelivered
// children idempotent, and executed notifications are purged once they
// expire.
type zkConfigStore struct {
	conn             *zk.Conn
	logger           logger.Logger
	changeExpiration time.Duration

	mu           sync.Mutex
	lastExecuted int64
	watching     bool

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// newZKConfigStore connects to the ZooKeeper ensemble in the given config and
// ensures the paths the store relies on exist.
func newZKConfigStore(config *Config, l logger.Logger) (*zkConfigStore, error) {
	conn, _, err := zk.Connect(
		config.ZooKeeper.Servers,
		config.ZooKeeper.SessionTimeout,
		zk.WithLogger(logger.NewZKLogger(l, config.ZooKeeper.Logging)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ZooKeeper")
	}
	s := &zkConfigStore{
		conn:             conn,
		logger:           l,
		changeExpiration: config.ZooKeeper.ChangeExpiration,
		lastExecuted:     -1,
		shutdownCh:       make(chan struct{}),
	}
	for _, path := range []string{
		zkConfigRoot,
		fmt.Sprintf("%s/%ss", zkConfigRoot, ConfigTypeTopic),
		fmt.Sprintf("%s/%ss", zkConfigRoot, ConfigTypeClient),
		zkChangesPath,
		"/brokers",
		zkTopicsPath,
	} {
		if err := s.ensurePath(path); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *zkConfigStore) ensurePath(path string) error {
	_, err := s.conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return errors.Wrapf(err, "failed to create path %s", path)
	}
	return nil
}

func entityConfigPath(entityType ConfigType, entityName string) string {
	return fmt.Sprintf("%s/%ss/%s", zkConfigRoot, entityType, entityName)
}

func topicPath(topic string) string {
	return fmt.Sprintf("%s/%s", zkTopicsPath, topic)
}

// CreateTopic registers the topic znode.
func (s *zkConfigStore) CreateTopic(topic string, partitions, replicationFactor int32) error {
	data, err := json.Marshal(&zkTopicMetadata{
		Version:           1,
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return err
	}
	_, err = s.conn.Create(topicPath(topic), data, 0, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		return ErrTopicExists
	}
	return errors.Wrapf(err, "failed to create topic %q", topic)
}

// TopicExists indicates if the topic znode exists.
func (s *zkConfigStore) TopicExists(topic string) (bool, error) {
	exists, _, err := s.conn.Exists(topicPath(topic))
	if err != nil {
		return false, errors.Wrapf(err, "failed to check topic %q", topic)
	}
	return exists, nil
}

// SetEntityConfig replaces the stored override set for the entity.
func (s *zkConfigStore) SetEntityConfig(entityType ConfigType, entityName string,
	props map[string]string) error {

	data, err := json.Marshal(&zkEntityConfig{Version: 1, Config: props})
	if err != nil {
		return err
	}
	path := entityConfigPath(entityType, entityName)
	_, err = s.conn.Set(path, data, -1)
	if err == zk.ErrNoNode {
		_, err = s.conn.Create(path, data, 0, zk.WorldACL(zk.PermAll))
	}
	return errors.Wrapf(err, "failed to store config for %s %q", entityType, entityName)
}

// GetEntityConfig reads the complete current override set for the entity. A
// missing config znode yields an empty set.
func (s *zkConfigStore) GetEntityConfig(entityType ConfigType, entityName string) (
	map[string]string, error) {

	data, _, err := s.conn.Get(entityConfigPath(entityType, entityName))
	if err == zk.ErrNoNode {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config for %s %q", entityType, entityName)
	}
	var stored zkEntityConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrapf(err, "malformed config for %s %q", entityType, entityName)
	}
	if stored.Config == nil {
		return map[string]string{}, nil
	}
	return stored.Config, nil
}

// PublishConfigChange appends a sequential change znode.
func (s *zkConfigStore) PublishConfigChange(payload []byte) error {
	_, err := s.conn.Create(
		fmt.Sprintf("%s/%s", zkChangesPath, zkChangePrefix),
		payload, zk.FlagSequence, zk.WorldACL(zk.PermAll))
	return errors.Wrap(err, "failed to publish config change")
}

// WatchConfigChanges starts the notification watch loop. Notifications
// present at startup are delivered first so a restarted broker converges.
func (s *zkConfigStore) WatchConfigChanges(handler func(payload []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watching {
		return errors.New("config changes are already being watched")
	}
	s.watching = true
	go s.watchLoop(handler)
	return nil
}

func (s *zkConfigStore) watchLoop(handler func(payload []byte)) {
	for {
		children, _, eventCh, err := s.conn.ChildrenW(zkChangesPath)
		if err != nil {
			s.logger.Errorf("Failed to watch config changes: %v", err)
			select {
			case <-time.After(zkRetryWait):
				continue
			case <-s.shutdownCh:
				return
			}
		}
		s.processChanges(children, handler)
		select {
		case <-eventCh:
		case <-s.shutdownCh:
			return
		}
	}
}

// processChanges delivers unexecuted notifications in sequence order and
// purges executed ones past their expiration.
func (s *zkConfigStore) processChanges(children []string, handler func(payload []byte)) {
	sequences := make([]int64, 0, len(children))
	for _, child := range children {
		seq, err := parseChangeSequence(child)
		if err != nil {
			s.logger.Warnf("Ignoring unexpected node %q under %s: %v", child, zkChangesPath, err)
			continue
		}
		sequences = append(sequences, seq)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	now := time.Now()
	for _, seq := range sequences {
		path := changePath(seq)
		if seq > s.lastExecuted {
			payload, _, err := s.conn.Get(path)
			if err != nil {
				if err != zk.ErrNoNode {
					s.logger.Errorf("Failed to read config change %s: %v", path, err)
				}
				continue
			}
			handler(payload)
			s.lastExecuted = seq
			continue
		}
		// Already executed; purge once expired.
		_, stat, err := s.conn.Get(path)
		if err != nil {
			continue
		}
		mtime := time.UnixMilli(stat.Mtime)
		if now.Sub(mtime) > s.changeExpiration {
			if err := s.conn.Delete(path, -1); err != nil && err != zk.ErrNoNode {
				s.logger.Warnf("Failed to purge expired config change %s: %v", path, err)
			}
		}
	}
}

// Close stops the watch loop and tears down the ZooKeeper session.
func (s *zkConfigStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.shutdownCh)
		s.conn.Close()
	})
	return nil
}

func changePath(seq int64) string {
	return fmt.Sprintf("%s/%s%010d", zkChangesPath, zkChangePrefix, seq)
}

// parseChangeSequence extracts the sequence number from a change znode name.
func parseChangeSequence(name string) (int64, error) {
	if !strings.HasPrefix(name, zkChangePrefix) {
		return 0, errors.Errorf("not a config change node: %q", name)
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(name, zkChangePrefix), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid change sequence in %q", name)
	}
	return seq, nil
}
