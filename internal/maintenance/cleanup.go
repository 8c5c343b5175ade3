// Package maintenance runs periodic housekeeping jobs inside the API process.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Invitations are kept this long after they expire or are accepted so the
// dashboard can still explain why a link stopped working.
const invitationRetention = 7 * 24 * time.Hour

// CleanupService periodically deletes spent invitations
type CleanupService struct {
	db       *gorm.DB
	interval time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupService creates a cleanup service that runs every interval
func NewCleanupService(db *gorm.DB, interval time.Duration) *CleanupService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		db:       db,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the periodic cleanup process
func (s *CleanupService) Start() {
	logger.Log.Info("Starting cleanup service", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.run()
}

// Stop stops the cleanup service and waits for a running pass to finish
func (s *CleanupService) Stop(context.Context) error {
	logger.Log.Info("Stopping cleanup service")
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *CleanupService) run() {
	defer s.wg.Done()

	// Run immediately on startup
	s.runLogged()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runLogged()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *CleanupService) runLogged() {
	start := time.Now()
	n, err := s.RunOnce(s.ctx)
	if err != nil {
		logger.Log.Error("Cleanup pass failed", zap.Error(err))
		return
	}
	logger.Log.Info("Cleanup pass completed",
		zap.Int64("invitations_deleted", n),
		zap.Duration("took", time.Since(start)),
	)
}

// RunOnce deletes invitations that expired, or were accepted, more than a
// week ago. It returns how many were deleted.
func (s *CleanupService) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-invitationRetention)
	res := s.db.WithContext(ctx).
		Where("(accepted_at IS NULL AND expires_at < ?) OR accepted_at < ?", cutoff, cutoff).
		Delete(&models.Invitation{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete spent invitations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
