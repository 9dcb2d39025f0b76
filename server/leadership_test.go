package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftlog/driftlog/server/proto"
)

// Ensure applying a LeaderAndIsr batch creates the partition logs with the
// topic's effective configuration and applies the pushed replication state.
func TestApplyLeaderAndIsrRequestCreatesLogs(t *testing.T) {
	s, store := newTestServer(newTestConfig())
	require.NoError(t, store.SetEntityConfig(ConfigTypeTopic, "foo", map[string]string{
		ConfigFlushIntervalMessages: "100000",
	}))

	req := proto.NewLeaderAndIsrRequest("controller-1", 1000,
		map[proto.TopicPartition]*proto.PartitionStateInfo{
			{Topic: "foo", Partition: 0}: {
				LeaderAndIsr: proto.LeaderAndIsr{
					Leader:      1,
					LeaderEpoch: 0,
					Isr:         []int32{1, 2},
					ZkVersion:   0,
				},
				ReplicationFactor: 2,
			},
			{Topic: "foo", Partition: 1}: {
				LeaderAndIsr: proto.LeaderAndIsr{
					Leader:      2,
					LeaderEpoch: 0,
					Isr:         []int32{2, 1},
					ZkVersion:   0,
				},
				ReplicationFactor: 2,
			},
		})
	require.NoError(t, s.applyLeaderAndIsrRequest(req))
	require.Equal(t, 2, s.logs.Count())

	l0, ok := s.logs.Get(proto.TopicPartition{Topic: "foo", Partition: 0})
	require.True(t, ok)
	require.Equal(t, int64(100000), l0.Config().FlushIntervalMessages)
	require.True(t, l0.IsLeader())
	require.Equal(t, []int32{1, 2}, l0.GetISR())

	l1, ok := s.logs.Get(proto.TopicPartition{Topic: "foo", Partition: 1})
	require.True(t, ok)
	require.False(t, l1.IsLeader())
	leader, _ := l1.GetLeader()
	require.Equal(t, int32(2), leader)
}

// Ensure a stale leadership claim is skipped without failing the batch or
// regressing the partition's epoch.
func TestApplyLeaderAndIsrRequestStaleEpoch(t *testing.T) {
	s, _ := newTestServer(newTestConfig())

	tp := proto.TopicPartition{Topic: "foo", Partition: 0}
	fresh := proto.NewLeaderAndIsrRequest("controller-1", 1000,
		map[proto.TopicPartition]*proto.PartitionStateInfo{
			tp: {
				LeaderAndIsr: proto.LeaderAndIsr{
					Leader:      2,
					LeaderEpoch: 5,
					Isr:         []int32{2},
					ZkVersion:   3,
				},
				ReplicationFactor: 1,
			},
		})
	require.NoError(t, s.applyLeaderAndIsrRequest(fresh))

	stale := proto.NewLeaderAndIsrRequest("controller-1", 1000,
		map[proto.TopicPartition]*proto.PartitionStateInfo{
			tp: {
				LeaderAndIsr: proto.LeaderAndIsr{
					Leader:      1,
					LeaderEpoch: 4,
					Isr:         []int32{1},
					ZkVersion:   4,
				},
				ReplicationFactor: 1,
			},
		})
	require.NoError(t, s.applyLeaderAndIsrRequest(stale))

	l, ok := s.logs.Get(tp)
	require.True(t, ok)
	leader, epoch := l.GetLeader()
	require.Equal(t, int32(2), leader)
	require.Equal(t, int32(5), epoch)
	require.False(t, l.IsLeader())
}

// Ensure a partition already hosted keeps its configuration when new leader
// state arrives.
func TestApplyLeaderAndIsrRequestExistingLog(t *testing.T) {
	s, _ := newTestServer(newTestConfig())

	tp := proto.TopicPartition{Topic: "foo", Partition: 0}
	config, err := s.config.Log.WithOverrides(map[string]string{
		ConfigRetentionMaxMessages: "500",
	})
	require.NoError(t, err)
	l := s.logs.GetOrCreate(tp, config)

	req := proto.NewLeaderAndIsrRequest("controller-1", 1000,
		map[proto.TopicPartition]*proto.PartitionStateInfo{
			tp: {
				LeaderAndIsr: proto.LeaderAndIsr{
					Leader:      1,
					LeaderEpoch: 1,
					Isr:         []int32{1},
					ZkVersion:   1,
				},
				ReplicationFactor: 1,
			},
		})
	require.NoError(t, s.applyLeaderAndIsrRequest(req))

	require.Equal(t, int64(500), l.Config().RetentionMaxMessages)
	require.True(t, l.IsLeader())
}
