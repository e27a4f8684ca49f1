package forecast

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Area identifies a reporting area inside a package.
type Area struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// AreaSeries holds the per-area value arrays of one time series. Which
// arrays are present depends on the package and the series; a nil slice
// means the feed did not carry it.
type AreaSeries struct {
	Area         Area     `json:"area"`
	WeatherCodes []string `json:"weatherCodes,omitempty"`
	Weathers     []string `json:"weathers,omitempty"`
	Winds        []string `json:"winds,omitempty"`
	Waves        []string `json:"waves,omitempty"`
	Pops         []string `json:"pops,omitempty"`
	Temps        []string `json:"temps,omitempty"`
	TempsMin     []string `json:"tempsMin,omitempty"`
	TempsMax     []string `json:"tempsMax,omitempty"`
}

// TimeSeries is one time axis of a package. Values at index i of every
// AreaSeries array describe TimeDefines[i].
type TimeSeries struct {
	TimeDefines []string     `json:"timeDefines,omitempty"`
	Areas       []AreaSeries `json:"areas"`
}

// Package is one of the two documents published for an office.
type Package struct {
	PublishingOffice string       `json:"publishingOffice,omitempty"`
	ReportDatetime   string       `json:"reportDatetime"`
	TimeSeries       []TimeSeries `json:"timeSeries"`
}

// series returns the i-th time series, or nil when the package has fewer.
func (p *Package) series(i int) *TimeSeries {
	if p == nil || i < 0 || i >= len(p.TimeSeries) {
		return nil
	}
	return &p.TimeSeries[i]
}

// Document is the ordered pair published for an office: the short-range
// package (required) and the weekly package (optional).
type Document struct {
	Short  Package
	Weekly *Package
}

// ParseDocument decodes the raw JSON array published by the feed and
// validates its shape once.
func ParseDocument(data []byte) (Document, error) {
	var pkgs []Package
	if err := json.Unmarshal(data, &pkgs); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return NewDocument(pkgs)
}

// NewDocument builds a Document from decoded packages.
func NewDocument(pkgs []Package) (Document, error) {
	if len(pkgs) == 0 {
		return Document{}, fmt.Errorf("%w: short-range package is missing", ErrInvalidDocument)
	}
	doc := Document{Short: pkgs[0]}
	if len(pkgs) > 1 {
		weekly := pkgs[1]
		doc.Weekly = &weekly
	}
	return doc, nil
}

// MarshalJSON encodes the document back into the feed's array form.
func (d Document) MarshalJSON() ([]byte, error) {
	pkgs := []Package{d.Short}
	if d.Weekly != nil {
		pkgs = append(pkgs, *d.Weekly)
	}
	return json.Marshal(pkgs)
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

// parseTimestamp accepts feed timestamps with or without seconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timestampLayouts {
		var ts time.Time
		ts, err = time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

// DateOf returns the calendar date of a feed timestamp in its own offset.
func DateOf(timestamp string) (string, error) {
	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return "", err
	}
	return ts.Format(DateLayout), nil
}
