package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamFetch is returned when the forecast document could not be retrieved.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrStore wraps persistence failures during upsert or query.
	ErrStore = errors.New("forecast store failure")

	// ErrInvalidDocument is returned when a document cannot be decoded at all.
	ErrInvalidDocument = errors.New("invalid forecast document")

	// ErrMalformedDocument matches every *MalformedDocumentError.
	ErrMalformedDocument = errors.New("malformed forecast document")
)

// MalformedDocumentError reports an expected series or field missing from a
// package. It is a warning: the derived field is left empty and
// normalization continues.
type MalformedDocumentError struct {
	Branch   DataSource
	AreaCode string
	Field    string
}

func (e *MalformedDocumentError) Error() string {
	if e.AreaCode == "" {
		return fmt.Sprintf("%s package: missing %s", e.Branch, e.Field)
	}
	return fmt.Sprintf("%s package, area %s: missing %s", e.Branch, e.AreaCode, e.Field)
}

func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}
