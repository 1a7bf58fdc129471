package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/storage/models"
)

// Scheduler runs a periodic sync of every property on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	spec        string
	timeout     time.Duration
	log         *logger.Logger

	mu      sync.RWMutex
	entryID cron.EntryID
	last    *models.SyncSummary
}

// NewScheduler creates a scheduler for the given standard cron spec.
// timeout bounds a single run; zero means no bound.
func NewScheduler(syncService *SyncService, spec string, timeout time.Duration, log *logger.Logger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		syncService: syncService,
		spec:        spec,
		timeout:     timeout,
		log:         log,
	}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.spec, s.run)
	if err != nil {
		return fmt.Errorf("scheduling sync %q: %w", s.spec, err)
	}

	s.mu.Lock()
	s.entryID = id
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("calendar sync scheduler started", "schedule", s.spec)
	return nil
}

// Stop waits for a running job to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("calendar sync scheduler stopped")
}

// NextRun returns the next scheduled run, or nil before Start.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// LastSummary returns the summary of the most recent run.
func (s *Scheduler) LastSummary() *models.SyncSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	results, err := s.syncService.SyncAll(ctx)
	if err != nil {
		s.log.Error("scheduled sync aborted", "error", err, "synced", len(results))
	}

	summary, _ := models.Summarize(results)
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	s.log.Info("scheduled sync finished",
		"duration", time.Since(started).String(),
		"total_syncs", summary.TotalSyncs,
		"failed_syncs", summary.FailedSyncs,
		"new_bookings", summary.TotalNewBookings,
		"updated_bookings", summary.TotalUpdatedBookings)
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
