package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/jma-forecast/internal/observability"
)

// Service orchestrates fetching, normalizing and persisting forecasts, and
// answers reconciled queries for the display layer.
type Service struct {
	store   Store
	fetcher Fetcher
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
	clock   clockwork.Clock

	// inflight coalesces concurrent syncs of the same parent code.
	inflight    singleflight.Group
	syncTimeout time.Duration
}

// DefaultSyncTimeout bounds one shared sync, independent of its callers.
const DefaultSyncTimeout = 30 * time.Second

// Option customises a Service.
type Option func(*Service)

// WithClock swaps the time source used for sync reports.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithSyncTimeout bounds how long one shared sync may run.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.syncTimeout = d
	}
}

// NewService creates a new Service.
func NewService(store Store, fetcher Fetcher, logger *zap.SugaredLogger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),

		syncTimeout: DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset clears the store. Called once at bootstrap.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("%w: reset: %v", ErrStore, err)
	}
	s.logger.Info("forecast store reset")
	return nil
}

// Sync fetches the document published for parentCode and stores its records.
// A fetch failure aborts the sync before any write; previously stored rows
// are left untouched.
//
// Concurrent calls for the same parentCode share one sync. The shared sync
// is not cancelled with any single caller; a caller whose ctx ends stops
// waiting and gets ctx's error.
func (s *Service) Sync(ctx context.Context, parentCode string) (SyncReport, error) {
	ch := s.inflight.DoChan(parentCode, func() (interface{}, error) {
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.syncTimeout)
		defer cancel()
		return s.sync(syncCtx, parentCode)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debugw("joined in-flight sync", "parent_code", parentCode)
		}
		report, _ := res.Val.(SyncReport)
		return report, res.Err
	case <-ctx.Done():
		return SyncReport{
			ParentCode: parentCode,
			Status:     SyncFailed,
			Error:      ctx.Err().Error(),
		}, ctx.Err()
	}
}

func (s *Service) sync(ctx context.Context, parentCode string) (SyncReport, error) {
	report := s.newReport(parentCode)

	if s.fetcher == nil {
		return s.fail(report, fmt.Errorf("%w: no fetcher configured", ErrUpstreamFetch))
	}

	doc, err := s.fetcher.FetchForecast(ctx, parentCode)
	if err != nil {
		if !errors.Is(err, ErrUpstreamFetch) {
			err = fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
		}
		return s.fail(report, err)
	}

	return s.persist(ctx, report, doc)
}

// SyncDocument normalizes an already fetched document and stores its records
// in one transaction. When a write fails, the records written before it are
// kept and the sync is reported as failed.
func (s *Service) SyncDocument(ctx context.Context, doc Document, parentCode string) (SyncReport, error) {
	return s.persist(ctx, s.newReport(parentCode), doc)
}

func (s *Service) persist(ctx context.Context, report SyncReport, doc Document) (SyncReport, error) {
	records, warnings := Normalize(doc, report.ParentCode)
	for _, w := range warnings {
		s.logger.Warnw("skipping malformed field", "parent_code", report.ParentCode, "sync_id", report.ID, "warning", w)
		report.Warnings = append(report.Warnings, w.Error())
	}
	s.metrics.NormalizeWarnings.Add(float64(len(warnings)))

	var weekly, short int
	var writeErr error
	err := s.store.InTx(ctx, func(w RecordWriter) error {
		for _, rec := range records {
			if err := w.Upsert(ctx, rec); err != nil {
				// Stop at the failed record; the ones before it still commit.
				writeErr = fmt.Errorf("upsert %s: %w", rec.Key(), err)
				return nil
			}
			if rec.DataSource == SourceShort {
				short++
			} else {
				weekly++
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(report, fmt.Errorf("%w: %v", ErrStore, err))
	}

	report.Weekly = weekly
	report.Short = short
	s.metrics.RecordsUpserted.WithLabelValues(string(SourceWeekly)).Add(float64(weekly))
	s.metrics.RecordsUpserted.WithLabelValues(string(SourceShort)).Add(float64(short))
	if writeErr != nil {
		return s.fail(report, fmt.Errorf("%w: %v", ErrStore, writeErr))
	}

	report.Status = SyncOK
	report.FinishedAt = s.clock.Now()

	s.metrics.Syncs.WithLabelValues(string(SyncOK)).Inc()
	s.metrics.SyncDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	s.logger.Infow("sync completed",
		"parent_code", report.ParentCode,
		"sync_id", report.ID,
		"weekly", weekly,
		"short", short,
		"warnings", len(warnings),
	)
	return report, nil
}

func (s *Service) newReport(parentCode string) SyncReport {
	return SyncReport{
		ID:         uuid.NewString(),
		ParentCode: parentCode,
		StartedAt:  s.clock.Now(),
	}
}

func (s *Service) fail(report SyncReport, err error) (SyncReport, error) {
	report.Status = SyncFailed
	report.Error = err.Error()
	report.FinishedAt = s.clock.Now()
	s.metrics.Syncs.WithLabelValues(string(SyncFailed)).Inc()
	s.logger.Errorw("sync failed", "parent_code", report.ParentCode, "sync_id", report.ID, "error", err)
	return report, err
}

// ListDates returns the dates with data for parentCode, ascending.
func (s *Service) ListDates(ctx context.Context, parentCode string) ([]string, error) {
	dates, err := s.store.ListDates(ctx, parentCode)
	if err != nil {
		return nil, fmt.Errorf("%w: list dates: %v", ErrStore, err)
	}
	return dates, nil
}

// ForecastsFor returns one record per distinct area name for parentCode on
// targetDate, preferring short-range rows over weekly ones.
func (s *Service) ForecastsFor(ctx context.Context, parentCode, targetDate string) ([]ForecastRecord, error) {
	rows, err := s.store.ListByKey(ctx, parentCode, targetDate)
	if err != nil {
		return nil, fmt.Errorf("%w: list forecasts: %v", ErrStore, err)
	}
	return Reconcile(rows), nil
}
