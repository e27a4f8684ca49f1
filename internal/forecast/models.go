package forecast

import (
	"time"
)

// DataSource records which feed package produced a record.
type DataSource string

const (
	SourceWeekly DataSource = "weekly"
	SourceShort  DataSource = "short"
)

// DateLayout is the canonical form of ForecastRecord.TargetDate.
const DateLayout = "2006-01-02"

// Pop is one precipitation-probability entry. Label is the hour of day for
// short-range rows ("06時") and "day" for weekly rows.
type Pop struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// String renders the entry the way it is displayed, e.g. "06時 30%".
func (p Pop) String() string {
	return p.Label + " " + p.Value + "%"
}

// ForecastRecord is the canonical, feed-independent unit stored per
// (AreaCode, TargetDate).
type ForecastRecord struct {
	AreaCode       string     `json:"areaCode" gorm:"column:area_code;primaryKey"`
	ParentCode     string     `json:"parentCode" gorm:"column:parent_code;index:idx_forecasts_parent_code_target_date,priority:1"`
	AreaName       string     `json:"areaName" gorm:"column:area_name"`
	TargetDate     string     `json:"targetDate" gorm:"column:target_date;primaryKey;index:idx_forecasts_parent_code_target_date,priority:2"`
	WeatherCode    string     `json:"weatherCode" gorm:"column:weather_code"`
	WeatherText    string     `json:"weatherText" gorm:"column:weather_text"`
	WindText       string     `json:"windText" gorm:"column:wind_text"`
	WaveText       string     `json:"waveText" gorm:"column:wave_text"`
	Temps          []string   `json:"temps" gorm:"column:temps;serializer:json"`
	Pops           []Pop      `json:"pops" gorm:"column:pops;serializer:json"`
	ReportDatetime time.Time  `json:"reportDatetime" gorm:"column:report_datetime"`
	DataSource     DataSource `json:"dataSource" gorm:"column:data_source"`
}

// TableName specifies the table name for ForecastRecord.
func (ForecastRecord) TableName() string {
	return "forecasts"
}

// Key returns the uniqueness key of the record.
func (r ForecastRecord) Key() string {
	return r.AreaCode + ":" + r.TargetDate
}

// SyncStatus is the outcome of one sync.
type SyncStatus string

const (
	SyncOK     SyncStatus = "ok"
	SyncFailed SyncStatus = "failed"
)

// SyncReport summarises one sync of a region. Every sync produces one, even
// when it fails.
type SyncReport struct {
	ID         string     `json:"id"`
	ParentCode string     `json:"parentCode"`
	Status     SyncStatus `json:"status"`
	Weekly     int        `json:"weekly"`
	Short      int        `json:"short"`
	Warnings   []string   `json:"warnings,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}
