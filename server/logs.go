package server

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/driftlog/driftlog/server/proto"
)

// ErrStaleLeaderEpoch is returned when a leadership claim carries a leader
// epoch older than the one already applied to the partition.
var ErrStaleLeaderEpoch = errors.New("stale leader epoch")

// partitionLog is the in-memory handle for one partition's log: its effective
// configuration and current replication state. All access should go through
// the accessor methods, which give concurrent readers either the old or the
// new complete state while a single writer swaps it.
type partitionLog struct {
	mu          sync.RWMutex
	topic       string
	partition   int32
	config      LogConfig
	leader      int32
	leaderEpoch int32
	isr         []int32
	zkVersion   int32
	isLeader    bool
}

func newPartitionLog(topic string, partition int32, config LogConfig) *partitionLog {
	return &partitionLog{
		topic:     topic,
		partition: partition,
		config:    config,
		leader:    -1,
	}
}

// Topic returns the topic the log belongs to.
func (l *partitionLog) Topic() string {
	return l.topic
}

// Partition returns the partition number of the log.
func (l *partitionLog) Partition() int32 {
	return l.partition
}

// Config returns the log's current effective configuration.
func (l *partitionLog) Config() LogConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SwapConfig atomically replaces the log's effective configuration.
func (l *partitionLog) SwapConfig(config LogConfig) {
	l.mu.Lock()
	l.config = config
	l.mu.Unlock()
}

// GetLeader returns the broker currently acting as partition leader and the
// leader epoch.
func (l *partitionLog) GetLeader() (int32, int32) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.leader, l.leaderEpoch
}

// GetISR returns the partition's in-sync replica set.
func (l *partitionLog) GetISR() []int32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isr
}

// GetZkVersion returns the version stamp of the coordination node backing the
// partition's replication state.
func (l *partitionLog) GetZkVersion() int32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zkVersion
}

// IsLeader indicates if this broker is the partition leader.
func (l *partitionLog) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isLeader
}

// ApplyLeaderState applies a controller-pushed replication state to the log.
// A claim with a leader epoch older than the current one is rejected with
// ErrStaleLeaderEpoch, so the epoch never regresses.
func (l *partitionLog) ApplyLeaderState(state *proto.LeaderAndIsr, brokerID int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state.LeaderEpoch < l.leaderEpoch {
		return errors.Wrapf(ErrStaleLeaderEpoch,
			"leader epoch %d is older than current epoch %d for %s",
			state.LeaderEpoch, l.leaderEpoch, l)
	}
	l.leader = state.Leader
	l.leaderEpoch = state.LeaderEpoch
	l.isr = state.Isr
	l.zkVersion = state.ZkVersion
	l.isLeader = state.Leader == brokerID
	return nil
}

func (l *partitionLog) String() string {
	return fmt.Sprintf("[topic=%s, partition=%d]", l.topic, l.partition)
}

// logRegistry tracks the partition logs hosted by this broker, keyed by
// (topic, partition).
type logRegistry struct {
	mu   sync.RWMutex
	logs map[proto.TopicPartition]*partitionLog
}

func newLogRegistry() *logRegistry {
	return &logRegistry{logs: make(map[proto.TopicPartition]*partitionLog)}
}

// Get returns the log for the given (topic, partition) if it exists.
func (r *logRegistry) Get(tp proto.TopicPartition) (*partitionLog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[tp]
	return l, ok
}

// GetTopic returns all logs belonging to the given topic.
func (r *logRegistry) GetTopic(topic string) []*partitionLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var logs []*partitionLog
	for tp, l := range r.logs {
		if tp.Topic == topic {
			logs = append(logs, l)
		}
	}
	return logs
}

// GetOrCreate returns the log for the given (topic, partition), creating it
// with the given configuration if it does not exist yet.
func (r *logRegistry) GetOrCreate(tp proto.TopicPartition, config LogConfig) *partitionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[tp]; ok {
		return l
	}
	l := newPartitionLog(tp.Topic, tp.Partition, config)
	r.logs[tp] = l
	return l
}

// Count returns the number of hosted partition logs.
func (r *logRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs)
}
