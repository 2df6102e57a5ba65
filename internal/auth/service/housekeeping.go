package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService periodically revokes expired sessions and, when a
// rotation interval is configured, rotates the signing key.
type HousekeepingService struct {
	Sessions *SessionRegistry
	Keys     *KeyRotationService
	Logger   *slog.Logger
	Interval time.Duration

	// RotationInterval of zero disables scheduled rotation.
	RotationInterval time.Duration
	Clock            func() time.Time

	lastRotation time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(sessions *SessionRegistry, keys *KeyRotationService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		Sessions: sessions,
		Keys:     keys,
		Logger:   logger,
		Interval: interval,
		Clock:    time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. It runs one pass immediately.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	s.lastRotation = s.Clock()
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "rotation_interval", s.RotationInterval)
}

// Stop blocks until any in-progress pass has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single housekeeping pass. Each step is independent;
// a failing rotation does not stop session cleanup.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	if s.Sessions != nil {
		if n := s.Sessions.CleanupExpiredSessions(ctx); n > 0 {
			s.Logger.Info("revoked expired sessions", "count", n)
		}
	}

	if s.Keys == nil || s.RotationInterval <= 0 {
		return
	}
	now := s.Clock()
	if now.Sub(s.lastRotation) < s.RotationInterval {
		return
	}
	if _, err := s.Keys.RotateKey(ctx, 0); err != nil {
		// retried on the next tick
		return
	}
	s.lastRotation = now
}
