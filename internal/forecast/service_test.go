package forecast_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/jma-forecast/internal/forecast"
	"github.com/i474232898/jma-forecast/internal/observability"
	"github.com/i474232898/jma-forecast/internal/store"
)

var now = time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	doc   forecast.Document
	err   error
	calls atomic.Int32

	// entered and release, when set, hold FetchForecast until released.
	entered chan struct{}
	release chan struct{}

	// canceled records whether the fetch context was done after release.
	canceled atomic.Bool
}

func (f *fakeFetcher) FetchForecast(ctx context.Context, _ string) (forecast.Document, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
		f.canceled.Store(ctx.Err() != nil)
	}
	if f.err != nil {
		return forecast.Document{}, f.err
	}
	return f.doc, nil
}

// failingStore fails the n-th upsert made inside a transaction.
type failingStore struct {
	forecast.Store
	failAt int
}

func (s *failingStore) InTx(ctx context.Context, fn func(forecast.RecordWriter) error) error {
	return s.Store.InTx(ctx, func(w forecast.RecordWriter) error {
		return fn(&failingWriter{RecordWriter: w, failAt: s.failAt})
	})
}

type failingWriter struct {
	forecast.RecordWriter
	failAt int
	n      int
}

func (w *failingWriter) Upsert(ctx context.Context, rec forecast.ForecastRecord) error {
	w.n++
	if w.n == w.failAt {
		return errors.New("disk I/O error")
	}
	return w.RecordWriter.Upsert(ctx, rec)
}

func fixture(t *testing.T) forecast.Document {
	t.Helper()
	data, err := os.ReadFile("testdata/130000.json")
	require.NoError(t, err)
	doc, err := forecast.ParseDocument(data)
	require.NoError(t, err)
	return doc
}

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "forecast.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// countRows counts the raw rows stored for the fixture's dates.
func countRows(t *testing.T, st forecast.Store) int {
	t.Helper()
	n := 0
	for _, date := range []string{"2024-01-10", "2024-01-11", "2024-01-12", "2024-01-13"} {
		rows, err := st.ListByKey(context.Background(), "130000", date)
		require.NoError(t, err)
		n += len(rows)
	}
	return n
}

func newService(st forecast.Store, f forecast.Fetcher) (*forecast.Service, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	svc := forecast.NewService(st, f, zap.NewNop().Sugar(), m, forecast.WithClock(clockwork.NewFakeClockAt(now)))
	return svc, m
}

func TestSyncIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	svc, m := newService(st, &fakeFetcher{doc: fixture(t)})
	ctx := context.Background()

	report, err := svc.Sync(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, forecast.SyncOK, report.Status)
	assert.Equal(t, "130000", report.ParentCode)
	assert.Equal(t, 6, report.Weekly)
	assert.Equal(t, 6, report.Short)
	assert.Empty(t, report.Warnings)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, now, report.StartedAt)
	// Two short rows replace weekly rows with the same key.
	assert.Equal(t, 10, st.Len())

	first, err := svc.ForecastsFor(ctx, "130000", "2024-01-11")
	require.NoError(t, err)

	again, err := svc.Sync(ctx, "130000")
	require.NoError(t, err)
	assert.NotEqual(t, report.ID, again.ID)
	assert.Equal(t, 10, st.Len())

	second, err := svc.ForecastsFor(ctx, "130000", "2024-01-11")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Syncs.WithLabelValues("ok")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.RecordsUpserted.WithLabelValues("short")))
}

func TestListDatesAscending(t *testing.T) {
	svc, _ := newService(store.NewMemoryStore(), &fakeFetcher{doc: fixture(t)})
	ctx := context.Background()

	_, err := svc.Sync(ctx, "130000")
	require.NoError(t, err)

	dates, err := svc.ListDates(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-10", "2024-01-11", "2024-01-12", "2024-01-13"}, dates)

	dates, err = svc.ListDates(ctx, "270000")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestForecastsForPrefersShort(t *testing.T) {
	st := store.NewMemoryStore()
	svc, _ := newService(st, nil)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, forecast.ForecastRecord{
		AreaCode:    "130000",
		ParentCode:  "130000",
		AreaName:    "東京都",
		TargetDate:  "2024-01-10",
		WeatherText: "晴れ",
		DataSource:  forecast.SourceWeekly,
	}))

	short := forecast.Package{
		ReportDatetime: "2024-01-10T11:00:00+09:00",
		TimeSeries: []forecast.TimeSeries{{
			TimeDefines: []string{"2024-01-10T11:00:00+09:00"},
			Areas: []forecast.AreaSeries{{
				Area:         forecast.Area{Name: "東京都", Code: "130010"},
				WeatherCodes: []string{"200"},
				Weathers:     []string{"くもり"},
			}},
		}},
	}
	report, err := svc.SyncDocument(ctx, forecast.Document{Short: short}, "130000")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Short)
	assert.NotEmpty(t, report.Warnings)

	got, err := svc.ForecastsFor(ctx, "130000", "2024-01-10")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "東京都", got[0].AreaName)
	assert.Equal(t, "130010", got[0].AreaCode)
	assert.Equal(t, forecast.SourceShort, got[0].DataSource)
	assert.Equal(t, "くもり", got[0].WeatherText)

	// Both raw rows are still stored.
	assert.Equal(t, 2, st.Len())
}

func TestSyncUpstreamFailureLeavesRowsUntouched(t *testing.T) {
	st := store.NewMemoryStore()
	fetcher := &fakeFetcher{doc: fixture(t)}
	svc, m := newService(st, fetcher)
	ctx := context.Background()

	_, err := svc.Sync(ctx, "130000")
	require.NoError(t, err)
	before, err := st.ListByKey(ctx, "130000", "2024-01-12")
	require.NoError(t, err)

	fetcher.err = errors.New("connection refused")
	report, err := svc.Sync(ctx, "130000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, forecast.ErrUpstreamFetch))
	assert.Equal(t, forecast.SyncFailed, report.Status)
	assert.Contains(t, report.Error, "connection refused")
	assert.Equal(t, now, report.FinishedAt)

	after, err := st.ListByKey(ctx, "130000", "2024-01-12")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 10, st.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Syncs.WithLabelValues("failed")))
}

func TestSyncWithoutFetcher(t *testing.T) {
	svc, _ := newService(store.NewMemoryStore(), nil)

	report, err := svc.Sync(context.Background(), "130000")
	assert.True(t, errors.Is(err, forecast.ErrUpstreamFetch))
	assert.Equal(t, forecast.SyncFailed, report.Status)
}

func TestSyncStoreFailureKeepsEarlierRecords(t *testing.T) {
	for name, newStore := range map[string]func(t *testing.T) forecast.Store{
		"memory": func(*testing.T) forecast.Store { return store.NewMemoryStore() },
		"sqlite": func(t *testing.T) forecast.Store { return newSQLiteStore(t) },
	} {
		t.Run(name, func(t *testing.T) {
			st := newStore(t)
			svc, m := newService(&failingStore{Store: st, failAt: 5}, &fakeFetcher{doc: fixture(t)})

			report, err := svc.Sync(context.Background(), "130000")
			require.Error(t, err)
			assert.True(t, errors.Is(err, forecast.ErrStore))
			assert.False(t, errors.Is(err, forecast.ErrUpstreamFetch))
			assert.Equal(t, forecast.SyncFailed, report.Status)
			assert.Contains(t, report.Error, "disk I/O error")
			assert.Equal(t, 4, report.Weekly)
			assert.Zero(t, report.Short)

			// The four weekly records before the failed write are committed.
			assert.Equal(t, 4, countRows(t, st))
			assert.Equal(t, float64(4), testutil.ToFloat64(m.RecordsUpserted.WithLabelValues("weekly")))
			assert.Equal(t, float64(1), testutil.ToFloat64(m.Syncs.WithLabelValues("failed")))
		})
	}
}

func TestSyncOnSQLiteStore(t *testing.T) {
	st := newSQLiteStore(t)
	svc, _ := newService(st, &fakeFetcher{doc: fixture(t)})
	ctx := context.Background()

	_, err := svc.Sync(ctx, "130000")
	require.NoError(t, err)
	_, err = svc.Sync(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, 10, countRows(t, st))

	dates, err := svc.ListDates(ctx, "130000")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-10", "2024-01-11", "2024-01-12", "2024-01-13"}, dates)

	got, err := svc.ForecastsFor(ctx, "130000", "2024-01-11")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "東京地方", got[0].AreaName)
	assert.Equal(t, "130010", got[0].AreaCode)
	assert.Equal(t, forecast.SourceShort, got[0].DataSource)
	assert.Equal(t, []string{"3", "10"}, got[0].Temps)
	assert.Equal(t, []forecast.Pop{
		{Label: "00時", Value: "10"},
		{Label: "06時", Value: "20"},
		{Label: "12時", Value: "30"},
		{Label: "18時", Value: "20"},
	}, got[0].Pops)

	// The short row for the islands beats the weekly row under the same name.
	assert.Equal(t, "伊豆諸島北部", got[1].AreaName)
	assert.Equal(t, "130020", got[1].AreaCode)
	assert.Equal(t, forecast.SourceShort, got[1].DataSource)
	assert.Equal(t, []string{"6", "12"}, got[1].Temps)

	require.NoError(t, svc.Reset(ctx))
	dates, err = svc.ListDates(ctx, "130000")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestSyncCoalescesConcurrentCalls(t *testing.T) {
	fetcher := &fakeFetcher{
		doc:     fixture(t),
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	svc, _ := newService(store.NewMemoryStore(), fetcher)

	var wg sync.WaitGroup
	reports := make([]forecast.SyncReport, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0], _ = svc.Sync(context.Background(), "130000")
	}()
	<-fetcher.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1], _ = svc.Sync(context.Background(), "130000")
	}()
	time.Sleep(100 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, reports[0].ID, reports[1].ID)
}

func TestSyncSurvivesCanceledCaller(t *testing.T) {
	fetcher := &fakeFetcher{
		doc:     fixture(t),
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	svc, _ := newService(store.NewMemoryStore(), fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Sync(ctx, "130000")
		firstErr <- err
	}()
	<-fetcher.entered

	joined := make(chan forecast.SyncReport, 1)
	go func() {
		report, _ := svc.Sync(context.Background(), "130000")
		joined <- report
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)

	close(fetcher.release)
	report := <-joined
	assert.Equal(t, forecast.SyncOK, report.Status)
	assert.False(t, fetcher.canceled.Load())
}

func TestReset(t *testing.T) {
	st := store.NewMemoryStore()
	svc, _ := newService(st, &fakeFetcher{doc: fixture(t)})
	ctx := context.Background()

	_, err := svc.Sync(ctx, "130000")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx))

	assert.Zero(t, st.Len())
	dates, err := svc.ListDates(ctx, "130000")
	require.NoError(t, err)
	assert.Empty(t, dates)
}
