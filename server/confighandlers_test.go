package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftlog/driftlog/server/proto"
)

// Ensure applying a topic config change swaps the effective configuration of
// every hosted partition log of the topic and leaves other topics untouched.
func TestTopicConfigHandlerSwapsAllPartitions(t *testing.T) {
	defaults := NewDefaultConfig().Log
	logs := newLogRegistry()
	logs.GetOrCreate(proto.TopicPartition{Topic: "foo", Partition: 0}, defaults)
	logs.GetOrCreate(proto.TopicPartition{Topic: "foo", Partition: 1}, defaults)
	other := logs.GetOrCreate(proto.TopicPartition{Topic: "bar", Partition: 0}, defaults)

	handler := newTopicConfigHandler(logs, defaults, noopLogger())
	require.NoError(t, handler.ProcessConfigChanges("foo", map[string]string{
		ConfigFlushIntervalMessages: "100000",
	}))

	for _, l := range logs.GetTopic("foo") {
		require.Equal(t, int64(100000), l.Config().FlushIntervalMessages)
	}
	require.Equal(t, defaults.FlushIntervalMessages, other.Config().FlushIntervalMessages)
}

// Ensure overrides replace the previous set entirely: a property absent from
// the new set reverts to the broker default.
func TestTopicConfigHandlerFullReplacement(t *testing.T) {
	defaults := NewDefaultConfig().Log
	logs := newLogRegistry()
	l := logs.GetOrCreate(proto.TopicPartition{Topic: "foo", Partition: 0}, defaults)

	handler := newTopicConfigHandler(logs, defaults, noopLogger())
	require.NoError(t, handler.ProcessConfigChanges("foo", map[string]string{
		ConfigFlushIntervalMessages: "100000",
		ConfigRetentionMaxMessages:  "500",
	}))
	require.Equal(t, int64(100000), l.Config().FlushIntervalMessages)
	require.Equal(t, int64(500), l.Config().RetentionMaxMessages)

	require.NoError(t, handler.ProcessConfigChanges("foo", map[string]string{
		ConfigRetentionMaxMessages: "500",
	}))
	require.Equal(t, defaults.FlushIntervalMessages, l.Config().FlushIntervalMessages)
	require.Equal(t, int64(500), l.Config().RetentionMaxMessages)
}

// Ensure a change for a topic with no hosted logs is a no-op.
func TestTopicConfigHandlerNoLogs(t *testing.T) {
	defaults := NewDefaultConfig().Log
	logs := newLogRegistry()
	handler := newTopicConfigHandler(logs, defaults, noopLogger())

	require.NoError(t, handler.ProcessConfigChanges("ghost", map[string]string{
		ConfigFlushIntervalMessages: "100000",
	}))
	require.Equal(t, 0, logs.Count())
}

// Ensure an invalid property value fails without touching any log.
func TestTopicConfigHandlerInvalidValue(t *testing.T) {
	defaults := NewDefaultConfig().Log
	logs := newLogRegistry()
	l := logs.GetOrCreate(proto.TopicPartition{Topic: "foo", Partition: 0}, defaults)

	handler := newTopicConfigHandler(logs, defaults, noopLogger())
	require.Error(t, handler.ProcessConfigChanges("foo", map[string]string{
		ConfigFlushIntervalMessages: "lots",
	}))
	require.Equal(t, defaults, l.Config())
}

// Ensure re-applying identical properties yields identical state.
func TestTopicConfigHandlerIdempotent(t *testing.T) {
	defaults := NewDefaultConfig().Log
	logs := newLogRegistry()
	l := logs.GetOrCreate(proto.TopicPartition{Topic: "foo", Partition: 0}, defaults)

	handler := newTopicConfigHandler(logs, defaults, noopLogger())
	props := map[string]string{ConfigRetentionMaxBytes: "2048"}
	require.NoError(t, handler.ProcessConfigChanges("foo", props))
	first := l.Config()
	require.NoError(t, handler.ProcessConfigChanges("foo", props))
	require.Equal(t, first, l.Config())
}

// Ensure a client config change leaves the pool holding exactly the pushed
// override set for exactly that client.
func TestClientConfigHandlerReplaces(t *testing.T) {
	pool := NewClientConfigPool()
	handler := newClientConfigHandler(pool, noopLogger())

	require.NoError(t, handler.ProcessConfigChanges("testClient", map[string]string{
		"a.b": "c",
		"x.y": "z",
	}))
	require.Equal(t, 1, pool.Count())
	props, ok := pool.Get("testClient")
	require.True(t, ok)
	require.Equal(t, map[string]string{"a.b": "c", "x.y": "z"}, props)

	// A new set replaces, not merges.
	require.NoError(t, handler.ProcessConfigChanges("testClient", map[string]string{
		"a.b": "d",
	}))
	props, ok = pool.Get("testClient")
	require.True(t, ok)
	require.Equal(t, map[string]string{"a.b": "d"}, props)
	require.Equal(t, 1, pool.Count())
}

// Ensure the pool copies pushed properties so later caller mutation does not
// leak into the stored set.
func TestClientConfigPoolCopiesProps(t *testing.T) {
	pool := NewClientConfigPool()
	handler := newClientConfigHandler(pool, noopLogger())

	props := map[string]string{"a.b": "c"}
	require.NoError(t, handler.ProcessConfigChanges("testClient", props))
	props["a.b"] = "mutated"

	stored, ok := pool.Get("testClient")
	require.True(t, ok)
	require.Equal(t, "c", stored["a.b"])
}

func TestClientConfigPoolGetUnknown(t *testing.T) {
	pool := NewClientConfigPool()
	_, ok := pool.Get("nope")
	require.False(t, ok)
	require.Equal(t, 0, pool.Count())
}
