package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/jma-forecast/internal/forecast"
)

const syncTimeout = 30 * time.Second

// Syncer is the part of forecast.Service the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context, parentCode string) (forecast.SyncReport, error)
}

// Scheduler periodically syncs forecasts for the configured offices.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	syncer      Syncer
	offices     []string
	interval    time.Duration
	concurrency int
	logger      *zap.SugaredLogger
}

// New creates a new Scheduler.
func New(offices []string, interval time.Duration, concurrency int, syncer Syncer, logger *zap.SugaredLogger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		syncer:      syncer,
		offices:     offices,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.offices) == 0 {
		s.logger.Info("scheduler: no offices configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce syncs every configured office, at most concurrency at a time, and
// returns the number of failed syncs.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.logger.Infow("scheduler: running forecast sync job", "offices", len(s.offices))

	failed := make([]bool, len(s.offices))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, office := range s.offices {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, syncTimeout)
			defer cancel()

			// Failures are logged and counted by the service.
			if _, err := s.syncer.Sync(ctx, office); err != nil {
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var n int
	for _, f := range failed {
		if f {
			n++
		}
	}
	s.logger.Infow("scheduler: completed forecast sync job", "failed", n)
	return n
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
