package server

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/driftlog/driftlog/server/proto"
)

// leaderAndIsrInbox returns the NATS subject on which the given broker
// receives LeaderAndIsr requests from the controller.
func (s *Server) leaderAndIsrInbox(brokerID int32) string {
	return fmt.Sprintf("%s.broker.%d.leaderandisr", s.config.Clustering.Namespace, brokerID)
}

// handleLeaderAndIsrRequest is a NATS handler used to process replication
// state pushed by the controller. The broker acks with an empty payload on
// success; a non-empty payload carries the failure message back to the
// controller.
func (s *Server) handleLeaderAndIsrRequest(m *nats.Msg) {
	req, err := proto.DecodeLeaderAndIsrRequest(m.Data)
	if err != nil {
		s.logger.Errorf("Invalid LeaderAndIsr request: %v", err)
		s.respondLeaderAndIsr(m, err)
		return
	}
	if err := s.applyLeaderAndIsrRequest(req); err != nil {
		s.logger.Errorf("Failed to apply LeaderAndIsr request from %q: %v", req.ClientID, err)
		s.respondLeaderAndIsr(m, err)
		return
	}
	s.respondLeaderAndIsr(m, nil)
}

func (s *Server) respondLeaderAndIsr(m *nats.Msg, err error) {
	if m.Reply == "" {
		return
	}
	var data []byte
	if err != nil {
		data = []byte(err.Error())
	}
	if err := m.Respond(data); err != nil {
		s.logger.Errorf("Failed to respond to LeaderAndIsr request: %v", err)
	}
}

// SendLeaderAndIsrRequest pushes a replication state batch to the given
// broker and waits for its ack. The ack timeout carried in the request
// governs how long the transport waits; the codec itself never interprets
// it.
func (s *Server) SendLeaderAndIsrRequest(brokerID int32, req *proto.LeaderAndIsrRequest) error {
	data, err := proto.EncodeLeaderAndIsrRequest(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode LeaderAndIsr request")
	}
	timeout := time.Duration(req.AckTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = s.config.Clustering.ControllerAckTimeout
	}
	resp, err := s.nc.Request(s.leaderAndIsrInbox(brokerID), data, timeout)
	if err != nil {
		return errors.Wrapf(err, "failed to send LeaderAndIsr request to broker %d", brokerID)
	}
	if len(resp.Data) > 0 {
		return errors.Errorf("broker %d rejected LeaderAndIsr request: %s", brokerID, resp.Data)
	}
	return nil
}
