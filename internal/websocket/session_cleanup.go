package websocket

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// SessionCleanupService closes sessions that have been idle for too long
type SessionCleanupService struct {
	hub         *Hub
	idleTimeout time.Duration
	interval    time.Duration
	clock       clock.Clock
	logger      *zap.Logger
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service. Sessions
// are checked every quarter of idleTimeout, at least once a minute.
func NewSessionCleanupService(hub *Hub, idleTimeout time.Duration, logger *zap.Logger) *SessionCleanupService {
	interval := min(idleTimeout/4, time.Minute)
	if interval <= 0 {
		interval = time.Second
	}
	return &SessionCleanupService{
		hub:         hub,
		idleTimeout: idleTimeout,
		interval:    interval,
		clock:       hub.config.Clock,
		logger:      logger,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("idleTimeout", s.idleTimeout),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.doneChan)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup closes every idle session and returns how many it closed
func (s *SessionCleanupService) runCleanup() int {
	cutoff := s.clock.Now().Add(-s.idleTimeout)
	idle := s.hub.idleClients(cutoff)

	for _, client := range idle {
		s.logger.Info("Closing idle session", zap.String("sessionID", client.SessionID()))
		client.Close()
	}

	if len(idle) > 0 {
		s.logger.Info("Session cleanup completed", zap.Int("closedSessions", len(idle)))
	}
	return len(idle)
}
