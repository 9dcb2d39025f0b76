package proto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LeaderAndIsrRequestVersion is the current version of the LeaderAndIsr
// request wire format.
const LeaderAndIsrRequestVersion int16 = 1

// TopicPartition identifies a single partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("[topic=%s, partition=%d]", tp.Topic, tp.Partition)
}

// LeaderAndIsr describes the replication state of one partition: the broker
// currently acting as leader, the leader epoch, the in-sync replica set, and
// the version stamp of the coordination node backing the state. The leader
// epoch is monotonically non-decreasing for a given partition and is used to
// reject stale leadership claims.
type LeaderAndIsr struct {
	Leader      int32
	LeaderEpoch int32
	Isr         []int32
	ZkVersion   int32
}

// Encode serializes the LeaderAndIsr.
func (l *LeaderAndIsr) Encode(e PacketEncoder) error {
	e.PutInt32(l.Leader)
	e.PutInt32(l.LeaderEpoch)
	if err := e.PutString(encodeBrokerList(l.Isr)); err != nil {
		return err
	}
	e.PutInt32(l.ZkVersion)
	return nil
}

// Decode deserializes the LeaderAndIsr.
func (l *LeaderAndIsr) Decode(d PacketDecoder) error {
	var err error
	if l.Leader, err = d.Int32(); err != nil {
		return err
	}
	if l.LeaderEpoch, err = d.Int32(); err != nil {
		return err
	}
	isr, err := d.String()
	if err != nil {
		return err
	}
	if l.Isr, err = parseBrokerList(isr); err != nil {
		return err
	}
	if l.ZkVersion, err = d.Int32(); err != nil {
		return err
	}
	return nil
}

// PartitionStateInfo pairs a partition's LeaderAndIsr with its replication
// factor. The replication factor is expected to be at least the ISR size but
// that is not enforced here.
type PartitionStateInfo struct {
	LeaderAndIsr      LeaderAndIsr
	ReplicationFactor int32
}

// Encode serializes the PartitionStateInfo.
func (p *PartitionStateInfo) Encode(e PacketEncoder) error {
	if err := p.LeaderAndIsr.Encode(e); err != nil {
		return err
	}
	e.PutInt32(p.ReplicationFactor)
	return nil
}

// Decode deserializes the PartitionStateInfo.
func (p *PartitionStateInfo) Decode(d PacketDecoder) error {
	if err := p.LeaderAndIsr.Decode(d); err != nil {
		return err
	}
	var err error
	if p.ReplicationFactor, err = d.Int32(); err != nil {
		return err
	}
	return nil
}

// SizeInBytes returns the exact encoded length of the PartitionStateInfo.
func (p *PartitionStateInfo) SizeInBytes() (int, error) {
	return Size(p)
}

// EncodePartitionStateInfo serializes the PartitionStateInfo to bytes.
func EncodePartitionStateInfo(p *PartitionStateInfo) ([]byte, error) {
	return Encode(p)
}

// DecodePartitionStateInfo deserializes a PartitionStateInfo from the given
// bytes. It returns no partial object on failure. Bytes beyond the declared
// structure are ignored.
func DecodePartitionStateInfo(b []byte) (*PartitionStateInfo, error) {
	p := new(PartitionStateInfo)
	if err := Decode(b, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LeaderAndIsrRequest is the message by which the controller informs a broker
// which partitions it leads or follows along with the current replication
// state of each. Partition states are keyed by (topic, partition) with unique
// keys.
type LeaderAndIsrRequest struct {
	VersionID       int16
	ClientID        string
	AckTimeoutMs    int32
	PartitionStates map[TopicPartition]*PartitionStateInfo
}

// NewLeaderAndIsrRequest creates a LeaderAndIsrRequest at the current version
// with the given sender label, ack timeout, and partition states.
func NewLeaderAndIsrRequest(clientID string, ackTimeoutMs int32,
	partitionStates map[TopicPartition]*PartitionStateInfo) *LeaderAndIsrRequest {

	return &LeaderAndIsrRequest{
		VersionID:       LeaderAndIsrRequestVersion,
		ClientID:        clientID,
		AckTimeoutMs:    ackTimeoutMs,
		PartitionStates: partitionStates,
	}
}

// Encode serializes the LeaderAndIsrRequest.
func (r *LeaderAndIsrRequest) Encode(e PacketEncoder) error {
	e.PutInt16(r.VersionID)
	if err := e.PutString(r.ClientID); err != nil {
		return err
	}
	e.PutInt32(r.AckTimeoutMs)
	if err := e.PutArrayLength(len(r.PartitionStates)); err != nil {
		return err
	}
	for tp, state := range r.PartitionStates {
		if err := e.PutString(tp.Topic); err != nil {
			return err
		}
		e.PutInt32(tp.Partition)
		if err := state.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// Decode deserializes the LeaderAndIsrRequest. If the same (topic, partition)
// key appears twice in the stream, which a correct encoder never produces,
// the later occurrence wins.
func (r *LeaderAndIsrRequest) Decode(d PacketDecoder) error {
	var err error
	if r.VersionID, err = d.Int16(); err != nil {
		return err
	}
	if r.ClientID, err = d.String(); err != nil {
		return err
	}
	if r.AckTimeoutMs, err = d.Int32(); err != nil {
		return err
	}
	count, err := d.ArrayLength()
	if err != nil {
		return err
	}
	states := make(map[TopicPartition]*PartitionStateInfo, count)
	for i := 0; i < count; i++ {
		topic, err := d.String()
		if err != nil {
			return err
		}
		partition, err := d.Int32()
		if err != nil {
			return err
		}
		state := new(PartitionStateInfo)
		if err := state.Decode(d); err != nil {
			return err
		}
		states[TopicPartition{Topic: topic, Partition: partition}] = state
	}
	r.PartitionStates = states
	return nil
}

// SizeInBytes returns the exact encoded length of the request. Callers use
// this to pre-size transport buffers, so it must match Encode byte for byte.
func (r *LeaderAndIsrRequest) SizeInBytes() (int, error) {
	return Size(r)
}

// EncodeLeaderAndIsrRequest serializes the request to bytes.
func EncodeLeaderAndIsrRequest(r *LeaderAndIsrRequest) ([]byte, error) {
	return Encode(r)
}

// DecodeLeaderAndIsrRequest deserializes a LeaderAndIsrRequest from the given
// bytes. A truncated buffer fails with no partial object; trailing bytes
// beyond the declared entry count are ignored.
func DecodeLeaderAndIsrRequest(b []byte) (*LeaderAndIsrRequest, error) {
	r := new(LeaderAndIsrRequest)
	if err := Decode(b, r); err != nil {
		return nil, err
	}
	return r, nil
}

// encodeBrokerList renders broker ids as a comma-joined string for the wire.
func encodeBrokerList(ids []int32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

// parseBrokerList parses a comma-joined broker id string, preserving order.
func parseBrokerList(s string) ([]int32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int32, len(parts))
	for i, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid broker id %q", part)
		}
		ids[i] = int32(id)
	}
	return ids, nil
}
