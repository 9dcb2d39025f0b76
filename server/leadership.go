package server

import (
	"github.com/pkg/errors"

	"github.com/driftlog/driftlog/server/proto"
)

// applyLeaderAndIsrRequest applies a controller-pushed replication state
// batch to the hosted partition logs. Stale leadership claims are rejected
// per partition and never fail the batch; any other partition failure is
// surfaced after the remaining partitions have been applied.
func (s *Server) applyLeaderAndIsrRequest(req *proto.LeaderAndIsrRequest) error {
	var firstErr error
	for tp, state := range req.PartitionStates {
		if err := s.applyPartitionState(tp, state); err != nil {
			if errors.Cause(err) == ErrStaleLeaderEpoch {
				s.logger.Warnf("Rejecting stale leadership claim for partition %s: %v", tp, err)
				continue
			}
			s.logger.Errorf("Failed to apply partition state for %s: %v", tp, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Server) applyPartitionState(tp proto.TopicPartition, state *proto.PartitionStateInfo) error {
	l, ok := s.logs.Get(tp)
	if !ok {
		config, err := s.effectiveLogConfig(tp.Topic)
		if err != nil {
			return err
		}
		l = s.logs.GetOrCreate(tp, config)
	}

	wasLeader := l.IsLeader()
	if err := l.ApplyLeaderState(&state.LeaderAndIsr, s.config.Clustering.BrokerID); err != nil {
		return err
	}

	if l.IsLeader() && !wasLeader {
		s.logger.Infof("Server became leader for partition %s, epoch %d, ISR %v",
			l, state.LeaderAndIsr.LeaderEpoch, state.LeaderAndIsr.Isr)
	} else if !l.IsLeader() && wasLeader {
		s.logger.Infof("Server became follower for partition %s, leader %d, epoch %d",
			l, state.LeaderAndIsr.Leader, state.LeaderAndIsr.LeaderEpoch)
	}
	return nil
}

// effectiveLogConfig computes the log configuration for a topic by applying
// its stored overrides on top of the broker defaults.
func (s *Server) effectiveLogConfig(topic string) (LogConfig, error) {
	props, err := s.configStore.GetEntityConfig(ConfigTypeTopic, topic)
	if err != nil {
		return LogConfig{}, err
	}
	return s.config.Log.WithOverrides(props)
}
