package store

import (
	"context"
	"sort"
	"sync"

	"github.com/i474232898/jma-forecast/internal/forecast"
)

// MemoryStore is a concurrency-safe in-memory implementation of forecast.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: area_code:target_date
	rows map[string]forecast.ForecastRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]forecast.ForecastRecord),
	}
}

// Upsert replaces any row with the same (area code, target date).
func (s *MemoryStore) Upsert(_ context.Context, rec forecast.ForecastRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[rec.Key()] = clone(rec)
	return nil
}

// InTx stages writes and applies them only when fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(w forecast.RecordWriter) error) error {
	tx := &memoryTx{staged: make(map[string]forecast.ForecastRecord)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range tx.order {
		s.rows[key] = tx.staged[key]
	}
	return nil
}

// Reset drops every row.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = make(map[string]forecast.ForecastRecord)
	return nil
}

// ListDates returns the distinct dates stored for parentCode, ascending.
func (s *MemoryStore) ListDates(_ context.Context, parentCode string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	dates := []string{}
	for _, rec := range s.rows {
		if rec.ParentCode != parentCode || seen[rec.TargetDate] {
			continue
		}
		seen[rec.TargetDate] = true
		dates = append(dates, rec.TargetDate)
	}
	sort.Strings(dates)
	return dates, nil
}

// ListByKey returns the rows for parentCode on targetDate ordered by area code.
func (s *MemoryStore) ListByKey(_ context.Context, parentCode, targetDate string) ([]forecast.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []forecast.ForecastRecord{}
	for _, rec := range s.rows {
		if rec.ParentCode == parentCode && rec.TargetDate == targetDate {
			result = append(result, clone(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AreaCode < result[j].AreaCode
	})
	return result, nil
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

type memoryTx struct {
	staged map[string]forecast.ForecastRecord
	order  []string
}

func (tx *memoryTx) Upsert(_ context.Context, rec forecast.ForecastRecord) error {
	key := rec.Key()
	if _, ok := tx.staged[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.staged[key] = clone(rec)
	return nil
}

// clone copies the slices so callers cannot mutate stored rows.
func clone(rec forecast.ForecastRecord) forecast.ForecastRecord {
	rec.Temps = append([]string{}, rec.Temps...)
	rec.Pops = append([]forecast.Pop{}, rec.Pops...)
	return rec
}
