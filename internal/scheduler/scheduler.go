// Package scheduler runs periodic maintenance jobs
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// FamilyRefresher re-fetches cached families from the remote store
type FamilyRefresher interface {
	RefreshCachedFamilies(ctx context.Context) (int, error)
}

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	families FamilyRefresher
	log      *zap.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(families FamilyRefresher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		families: families,
		log:      logger,
	}
}

// Start registers the family revalidation job on schedule and starts the
// scheduler. An empty schedule disables the job.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		s.log.Info("family refresh disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, s.RefreshFamilies); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", zap.String("refresh_schedule", schedule))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RefreshFamilies revalidates every cached family once
func (s *Scheduler) RefreshFamilies() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	refreshed, err := s.families.RefreshCachedFamilies(ctx)
	if err != nil {
		s.log.Error("family refresh failed", zap.Int("refreshed", refreshed), zap.Error(err))
		return
	}
	s.log.Info("family refresh complete",
		zap.Int("refreshed", refreshed),
		zap.Duration("duration", time.Since(start)))
}
