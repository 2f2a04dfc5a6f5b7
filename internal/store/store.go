// Package store implements the authoritative archive of fetched statuses.
//
// The archive is an insert-only SQLite database: a record, once written, is
// never updated or deleted, and re-insertion of an existing id is an error
// rather than a silent overwrite. The maximum archived id doubles as the
// resume cursor for incremental fetching.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tootsearch/tootsearch/internal/models"
	"github.com/tootsearch/tootsearch/pkg/logging"
)

var (
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("status not found")

	// ErrDuplicate is returned by Insert when the id is already archived.
	// Surfacing it signals a resume-cursor defect and must not be swallowed.
	ErrDuplicate = errors.New("status already archived")
)

// zapWriter adapts zap.Logger to gorm's logger.Writer interface.
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// Store wraps the GORM connection to the archive database.
type Store struct {
	db     *gorm.DB
	path   string
	logger *zap.Logger
}

// Open connects to the archive database at path, creating the file on first
// use. The caller should call Close when the store is no longer needed.
func Open(path string) (*Store, error) {
	zlog := logging.GetLogger().With(zap.String("component", "store"))

	gormLogger := logger.New(
		&zapWriter{logger: zlog},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database %s: %w", path, err)
	}

	return &Store{db: db, path: path, logger: zlog}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Initialize ensures the archive schema exists. With recreate set, an
// existing database file is destroyed and rebuilt empty; otherwise an
// existing archive is left untouched.
func Initialize(path string, recreate bool) error {
	if recreate {
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove archive database %s: %w", path, err)
			}
		}
	}

	s, err := Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.db.AutoMigrate(&models.Status{}); err != nil {
		return fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return nil
}

// ResumeCursor returns the maximum archived id. ok is false when the archive
// is empty, which callers must treat as "fetch everything". The value is
// computed on demand, never cached.
func (s *Store) ResumeCursor(ctx context.Context) (int64, bool, error) {
	var status models.Status
	err := s.db.WithContext(ctx).Order("id DESC").First(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read resume cursor: %w", err)
	}
	return status.ID, true, nil
}

// Get retrieves an archived status by id.
func (s *Store) Get(ctx context.Context, id int64) (*models.Status, error) {
	var status models.Status
	err := s.db.WithContext(ctx).First(&status, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("status %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get status %d: %w", id, err)
	}
	return &status, nil
}

// Insert archives one status. Inserting an id that is already present fails
// with ErrDuplicate.
func (s *Store) Insert(ctx context.Context, status *models.Status) error {
	err := s.db.WithContext(ctx).Create(status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("status %d: %w", status.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert status %d: %w", status.ID, err)
	}
	return nil
}

// Scan returns every archived status. Row order is whatever the backing
// database produces; callers needing sorted output must sort explicitly.
func (s *Store) Scan(ctx context.Context) ([]models.Status, error) {
	var statuses []models.Status
	if err := s.db.WithContext(ctx).Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}
	return statuses, nil
}

// Count returns the number of archived statuses.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Status{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count archive: %w", err)
	}
	return n, nil
}
