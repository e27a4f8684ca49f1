package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/i474232898/jma-forecast/internal/area"
	"github.com/i474232898/jma-forecast/internal/forecast"
	"github.com/i474232898/jma-forecast/internal/observability"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	migrationsTable = "schema_migrations"

	// areaSchemaVersion is the last migration that does not touch forecasts.
	areaSchemaVersion = 1
)

// SQLiteStore persists forecasts and the area cache in a SQLite file.
type SQLiteStore struct {
	db       *gorm.DB
	migrator *migrate.Migrate
	logger   *zap.SugaredLogger
}

// NewSQLiteStore opens (or creates) the database at path and applies all
// pending migrations.
func NewSQLiteStore(path string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger: observability.NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	drv, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init migrate: %w", err)
	}

	s := &SQLiteStore{db: db, migrator: m, logger: logger}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000"
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
}

// Migrate applies all up migrations.
func (s *SQLiteStore) Migrate() error {
	if err := s.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, err := s.migrator.Version()
	if err == nil {
		s.logger.Debugw("schema ready", "version", version, "dirty", dirty)
	}
	return nil
}

// Reset drops and recreates the forecasts table by migrating down to the
// area cache schema and back up. The area cache survives.
func (s *SQLiteStore) Reset(_ context.Context) error {
	if err := s.migrator.Migrate(areaSchemaVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down to %d: %w", areaSchemaVersion, err)
	}
	return s.Migrate()
}

// Upsert inserts rec or replaces the row with the same key.
func (s *SQLiteStore) Upsert(ctx context.Context, rec forecast.ForecastRecord) error {
	return upsert(s.db.WithContext(ctx), rec)
}

// InTx runs fn inside a database transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(w forecast.RecordWriter) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txWriter{tx: tx})
	})
}

// ListDates returns the distinct dates stored for parentCode, ascending.
func (s *SQLiteStore) ListDates(ctx context.Context, parentCode string) ([]string, error) {
	dates := []string{}
	err := s.db.WithContext(ctx).
		Model(&forecast.ForecastRecord{}).
		Distinct().
		Where("parent_code = ?", parentCode).
		Order("target_date ASC").
		Pluck("target_date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("list dates for %s: %w", parentCode, err)
	}
	return dates, nil
}

// ListByKey returns the rows for parentCode on targetDate ordered by area code.
func (s *SQLiteStore) ListByKey(ctx context.Context, parentCode, targetDate string) ([]forecast.ForecastRecord, error) {
	rows := []forecast.ForecastRecord{}
	err := s.db.WithContext(ctx).
		Where("parent_code = ? AND target_date = ?", parentCode, targetDate).
		Order("area_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list forecasts for %s/%s: %w", parentCode, targetDate, err)
	}
	return rows, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	srcErr, dbErr := s.migrator.Close()
	return errors.Join(srcErr, dbErr)
}

type txWriter struct {
	tx *gorm.DB
}

// Upsert writes rec under its own savepoint so a failed write is undone
// without aborting the surrounding transaction.
func (w txWriter) Upsert(ctx context.Context, rec forecast.ForecastRecord) error {
	return w.tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return upsert(sp, rec)
	})
}

func upsert(db *gorm.DB, rec forecast.ForecastRecord) error {
	if rec.Temps == nil {
		rec.Temps = []string{}
	}
	if rec.Pops == nil {
		rec.Pops = []forecast.Pop{}
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "area_code"}, {Name: "target_date"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

type centerRow struct {
	Code       string `gorm:"column:code;primaryKey"`
	Name       string `gorm:"column:name"`
	EnName     string `gorm:"column:en_name"`
	OfficeName string `gorm:"column:office_name"`
}

func (centerRow) TableName() string { return "centers" }

type officeRow struct {
	Code             string `gorm:"column:code;primaryKey"`
	Name             string `gorm:"column:name"`
	EnName           string `gorm:"column:en_name"`
	OfficeName       string `gorm:"column:office_name"`
	ParentCenterCode string `gorm:"column:parent_center_code"`
}

func (officeRow) TableName() string { return "offices" }

// CountCenters returns the number of cached centers.
func (s *SQLiteStore) CountCenters(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&centerRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count centers: %w", err)
	}
	return n, nil
}

// SaveTaxonomy writes the centers and offices of t, replacing existing rows.
func (s *SQLiteStore) SaveTaxonomy(ctx context.Context, t area.Taxonomy) error {
	centers := make([]centerRow, 0, len(t.Centers))
	for _, c := range t.SortedCenters() {
		centers = append(centers, centerRow{Code: c.Code, Name: c.Name, EnName: c.EnName, OfficeName: c.OfficeName})
	}
	offices := make([]officeRow, 0, len(t.Offices))
	for _, o := range t.Offices {
		offices = append(offices, officeRow{
			Code:             o.Code,
			Name:             o.Name,
			EnName:           o.EnName,
			OfficeName:       o.OfficeName,
			ParentCenterCode: o.ParentCenter,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, UpdateAll: true}
		if len(centers) > 0 {
			if err := tx.Clauses(onConflict).CreateInBatches(centers, 100).Error; err != nil {
				return fmt.Errorf("save centers: %w", err)
			}
		}
		if len(offices) > 0 {
			if err := tx.Clauses(onConflict).CreateInBatches(offices, 100).Error; err != nil {
				return fmt.Errorf("save offices: %w", err)
			}
		}
		return nil
	})
}

// LoadTaxonomy reads the cached centers and offices.
func (s *SQLiteStore) LoadTaxonomy(ctx context.Context) (area.Taxonomy, error) {
	var centers []centerRow
	if err := s.db.WithContext(ctx).Order("code").Find(&centers).Error; err != nil {
		return area.Taxonomy{}, fmt.Errorf("load centers: %w", err)
	}
	var offices []officeRow
	if err := s.db.WithContext(ctx).Order("code").Find(&offices).Error; err != nil {
		return area.Taxonomy{}, fmt.Errorf("load offices: %w", err)
	}

	cs := make([]area.Center, 0, len(centers))
	for _, c := range centers {
		cs = append(cs, area.Center{Code: c.Code, Name: c.Name, EnName: c.EnName, OfficeName: c.OfficeName})
	}
	offs := make([]area.Office, 0, len(offices))
	for _, o := range offices {
		offs = append(offs, area.Office{
			Code:         o.Code,
			Name:         o.Name,
			EnName:       o.EnName,
			OfficeName:   o.OfficeName,
			ParentCenter: o.ParentCenterCode,
		})
	}
	return area.New(cs, offs), nil
}
