package forecast

import (
	"context"
)

// Fetcher retrieves the forecast document published for an office.
type Fetcher interface {
	FetchForecast(ctx context.Context, officeCode string) (Document, error)
}

// RecordWriter writes records inside a transaction scope. A failed Upsert
// leaves no partial row and does not undo earlier writes in the scope.
type RecordWriter interface {
	Upsert(ctx context.Context, rec ForecastRecord) error
}

// Store is the contract the sqlite store (and the in-memory store) must satisfy.
type Store interface {
	RecordWriter

	// InTx runs fn in one transaction. Writes made through the RecordWriter
	// are committed only when fn returns nil.
	InTx(ctx context.Context, fn func(w RecordWriter) error) error

	// Reset establishes an empty store. Only used at bootstrap.
	Reset(ctx context.Context) error

	// ListDates returns the distinct dates with at least one row under
	// parentCode, ascending.
	ListDates(ctx context.Context, parentCode string) ([]string, error)

	// ListByKey returns all rows for parentCode and targetDate ordered by
	// area code, before reconciliation.
	ListByKey(ctx context.Context, parentCode, targetDate string) ([]ForecastRecord, error)
}
