package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/brokerops/portalvault/internal/vault/store"
)

// retainExpiredFor keeps expired rows around briefly so the history endpoint
// can still show recent churn before housekeeping removes them.
const retainExpiredFor = 7 * 24 * time.Hour

// HousekeepingService periodically deletes long-expired token rows so the
// table does not grow without bound under repeated acquisitions.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the service. A non-positive interval
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the worker, blocking until any in-progress
// cleanup finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-retainExpiredFor)

	deleted, err := s.Store.Tokens().DeleteExpiredTokens(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete expired tokens", "error", err)
		return
	}
	if deleted > 0 {
		s.Logger.Info("housekeeping removed expired tokens", "deleted", deleted)
	}
}
