// Package audit persists one row per collection session: target SSID,
// interface, start/stop times, final AP/station counts, and any restore
// failure. It never stores captured frames or the live AP/Station map —
// that would violate the "no persistent storage of captures" Non-goal.
// Uses gorm + sqlite with WAL pragmas and the otel tracing plugin, kept
// to a plain session log rather than a full device database.
package audit

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SessionRecord is one completed (or aborted) collection run.
type SessionRecord struct {
	ID           uint `gorm:"primaryKey"`
	TargetSSID   string
	Interface    string
	StartedAt    time.Time
	EndedAt      time.Time
	APCount      int
	StationCount int
	SetupError   string
	RestoreError string
}

// Store persists SessionRecords to a sqlite database.
type Store struct {
	db *gorm.DB
}

// Open creates/migrates the audit database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &Store{db: db}, nil
}

// Begin records the start of a new session and returns its ID.
func (s *Store) Begin(ctx context.Context, ssid, iface string, startedAt time.Time) (uint, error) {
	rec := SessionRecord{TargetSSID: ssid, Interface: iface, StartedAt: startedAt}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// End records the outcome of a finished session.
func (s *Store) End(ctx context.Context, id uint, endedAt time.Time, apCount, stationCount int, setupErr, restoreErr error) error {
	updates := map[string]interface{}{
		"ended_at":      endedAt,
		"ap_count":      apCount,
		"station_count": stationCount,
	}
	if setupErr != nil {
		updates["setup_error"] = setupErr.Error()
	}
	if restoreErr != nil {
		updates["restore_error"] = restoreErr.Error()
	}
	return s.db.WithContext(ctx).Model(&SessionRecord{}).Where("id = ?", id).Updates(updates).Error
}

// Recent returns the most recent n session records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]SessionRecord, error) {
	var recs []SessionRecord
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(n).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
