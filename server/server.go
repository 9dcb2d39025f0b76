package server

import (
	"fmt"
	"io/ioutil"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/driftlog/driftlog/server/logger"
)

// Server is a driftlog broker: it hosts partition logs, reacts to
// controller-pushed replication state, and converges on dynamically pushed
// configuration.
type Server struct {
	config          *Config
	logger          logger.Logger
	nc              *nats.Conn
	configStore     ConfigStore
	logs            *logRegistry
	clientConfigs   *ClientConfigPool
	dynamicConfig   *DynamicConfigManager
	admin           *adminAPI
	leaderAndIsrSub *nats.Subscription
	mu              sync.RWMutex
	shutdown        bool
	running         bool
}

// New creates a Server with the given config.
func New(config *Config) *Server {
	l := logger.NewLogger(config.LogLevel)
	if config.LogSilent {
		l.SetWriter(ioutil.Discard)
	}
	s := &Server{
		config:        config,
		logger:        l,
		logs:          newLogRegistry(),
		clientConfigs: NewClientConfigPool(),
	}
	s.admin = newAdminAPI(s)
	return s
}

// Start connects the server to the coordination service and NATS, registers
// the configuration change handlers, and begins accepting controller pushes.
func (s *Server) Start() error {
	if s.configStore == nil {
		store, err := newZKConfigStore(s.config, s.logger)
		if err != nil {
			s.Stop()
			return errors.Wrap(err, "failed to connect to coordination service")
		}
		s.configStore = store
	}

	nc, err := s.createNATSConn("broker")
	if err != nil {
		s.Stop()
		return errors.Wrap(err, "failed to connect to NATS")
	}
	s.nc = nc

	s.logger.Infof("Server ID:  %s", s.config.Clustering.ServerID)
	s.logger.Infof("Broker ID:  %d", s.config.Clustering.BrokerID)
	s.logger.Infof("Namespace:  %s", s.config.Clustering.Namespace)
	s.logger.Infof("Retention:  %s", s.config.Log.RetentionString())

	s.dynamicConfig = NewDynamicConfigManager(map[ConfigType]ConfigHandler{
		ConfigTypeTopic:  newTopicConfigHandler(s.logs, s.config.Log, s.logger),
		ConfigTypeClient: newClientConfigHandler(s.clientConfigs, s.logger),
	}, s.configStore, s.logger)

	if err := s.startConfigChangeListener(); err != nil {
		s.Stop()
		return errors.Wrap(err, "failed to watch config changes")
	}

	sub, err := s.nc.Subscribe(
		s.leaderAndIsrInbox(s.config.Clustering.BrokerID), s.handleLeaderAndIsrRequest)
	if err != nil {
		s.Stop()
		return errors.Wrap(err, "failed to subscribe to LeaderAndIsr subject")
	}
	s.leaderAndIsrSub = sub

	s.handleSignals()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// startConfigChangeListener binds the coordination-service watch to the
// dynamic config manager. A failed notification is logged and never stops
// delivery of the ones behind it.
func (s *Server) startConfigChangeListener() error {
	return s.configStore.WatchConfigChanges(func(payload []byte) {
		if err := s.dynamicConfig.ProcessNotification(payload); err != nil {
			s.logger.Errorf("Failed to process config change notification: %v", err)
		}
	})
}

func (s *Server) createNATSConn(name string) (*nats.Conn, error) {
	var err error
	opts := s.config.NATS
	opts.Name = fmt.Sprintf("DL-%s-%s", s.config.Clustering.ServerID, name)
	opts.ReconnectWait = 250 * time.Millisecond
	opts.MaxReconnect = -1
	opts.ReconnectBufSize = -1

	if err = nats.ErrorHandler(s.natsErrorHandler)(&opts); err != nil {
		return nil, err
	}
	if err = nats.ReconnectHandler(s.natsReconnectedHandler)(&opts); err != nil {
		return nil, err
	}
	if err = nats.ClosedHandler(s.natsClosedHandler)(&opts); err != nil {
		return nil, err
	}
	if err = nats.DisconnectHandler(s.natsDisconnectedHandler)(&opts); err != nil {
		return nil, err
	}

	return opts.Connect()
}

// Stop shuts the server down, tearing down the NATS and coordination-service
// sessions.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.logger.Info("Shutting down...")

	if s.leaderAndIsrSub != nil {
		if err := s.leaderAndIsrSub.Unsubscribe(); err != nil {
			s.logger.Errorf("Failed to unsubscribe from LeaderAndIsr subject: %v", err)
		}
	}

	if s.nc != nil {
		s.nc.Close()
	}

	if s.configStore != nil {
		if err := s.configStore.Close(); err != nil {
			s.logger.Errorf("Failed to close coordination-service session: %v", err)
		}
	}

	s.running = false
	s.shutdown = true
	s.mu.Unlock()

	return nil
}

func (s *Server) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

func (s *Server) natsDisconnectedHandler(nc *nats.Conn) {
	if s.isShutdown() {
		return
	}
	if nc.LastError() != nil {
		s.logger.Errorf("Connection %q has been disconnected from NATS: %v",
			nc.Opts.Name, nc.LastError())
	} else {
		s.logger.Errorf("Connection %q has been disconnected from NATS", nc.Opts.Name)
	}
}

func (s *Server) natsReconnectedHandler(nc *nats.Conn) {
	s.logger.Infof("Connection %q reconnected to NATS at %q",
		nc.Opts.Name, nc.ConnectedUrl())
}

func (s *Server) natsClosedHandler(nc *nats.Conn) {
	if s.isShutdown() {
		return
	}
	s.logger.Debugf("Connection %q has been closed", nc.Opts.Name)
}

func (s *Server) natsErrorHandler(nc *nats.Conn, sub *nats.Subscription, err error) {
	s.logger.Errorf("Asynchronous error on connection %s, subject %s: %s",
		nc.Opts.Name, sub.Subject, err)
}
