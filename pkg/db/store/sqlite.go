package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mwantia/gotape/pkg/db/migrations"
	"github.com/mwantia/gotape/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fileBatchSize caps the rows per INSERT during file indexing to bound
// memory on large trees.
const fileBatchSize = 1000

// SQLiteStore implements CatalogStore using SQLite
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// DB returns the underlying GORM database instance
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
	LogLevel     logger.LogLevel
}

// NewSQLiteStore creates a new SQLite-backed catalog store
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Default to silent logging
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Connect initializes the database connection
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(1) // SQLite only supports 1 writer
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrations.NewMigrator(s.db).Migrate(ctx)
}

// Health checks database connectivity
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Tape operations

func (s *SQLiteStore) CreateTape(ctx context.Context, tape *models.Tape) error {
	return s.db.WithContext(ctx).Create(tape).Error
}

func (s *SQLiteStore) GetTape(ctx context.Context, id uint) (*models.Tape, error) {
	var tape models.Tape
	err := s.db.WithContext(ctx).First(&tape, id).Error
	if err != nil {
		return nil, err
	}
	return &tape, nil
}

func (s *SQLiteStore) FindTapeByLabel(ctx context.Context, label string) (*models.Tape, error) {
	var tape models.Tape
	err := s.db.WithContext(ctx).Where("label = ?", label).First(&tape).Error
	if err != nil {
		return nil, err
	}
	return &tape, nil
}

func (s *SQLiteStore) FindTapeByDevice(ctx context.Context, device string) (*models.Tape, error) {
	var tape models.Tape
	err := s.db.WithContext(ctx).
		Where("device = ?", device).
		Order("last_written DESC").
		First(&tape).Error
	if err != nil {
		return nil, err
	}
	return &tape, nil
}

func (s *SQLiteStore) ListTapes(ctx context.Context) ([]models.Tape, error) {
	var tapes []models.Tape
	err := s.db.WithContext(ctx).Order("tape_id").Find(&tapes).Error
	return tapes, err
}

func (s *SQLiteStore) UpdateTape(ctx context.Context, tape *models.Tape) error {
	return s.db.WithContext(ctx).Save(tape).Error
}

// UpdateTapeStatus changes a tape's lifecycle status in a single write.
func (s *SQLiteStore) UpdateTapeStatus(ctx context.Context, id uint, status models.TapeStatus, notes string) error {
	updates := map[string]any{"status": status}
	if notes != "" {
		updates["notes"] = notes
	}
	result := s.db.WithContext(ctx).Model(&models.Tape{}).Where("tape_id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteTape(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archiveIDs []uint
		if err := tx.Model(&models.Archive{}).Where("tape_id = ?", id).Pluck("archive_id", &archiveIDs).Error; err != nil {
			return err
		}
		if len(archiveIDs) > 0 {
			if err := tx.Where("archive_id IN ?", archiveIDs).Delete(&models.FileRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("tape_id = ?", id).Delete(&models.Archive{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Tape{}, id).Error
	})
}

// AddTapeIfMissing returns the tape with the given label, creating it on
// first use of the label/device pair.
func (s *SQLiteStore) AddTapeIfMissing(ctx context.Context, label, device string) (*models.Tape, error) {
	tape, err := s.FindTapeByLabel(ctx, label)
	if err == nil {
		return tape, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tape = &models.Tape{
		Label:  label,
		Device: device,
		Status: models.TapeStatusActive,
	}
	if err := s.CreateTape(ctx, tape); err != nil {
		return nil, err
	}
	return tape, nil
}

// Archive operations

// CreateArchive inserts a new archive row, assigning the next 1-based
// position on its tape inside the same transaction so concurrent writes
// never produce gaps or duplicates.
func (s *SQLiteStore) CreateArchive(ctx context.Context, archive *models.Archive) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&models.Archive{}).
			Where("tape_id = ?", archive.TapeID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPos).Error; err != nil {
			return err
		}
		archive.Position = maxPos + 1
		return tx.Create(archive).Error
	})
}

func (s *SQLiteStore) GetArchive(ctx context.Context, id uint) (*models.Archive, error) {
	var archive models.Archive
	err := s.db.WithContext(ctx).First(&archive, id).Error
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func (s *SQLiteStore) FindArchiveByName(ctx context.Context, name string) (*models.Archive, error) {
	var archive models.Archive
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&archive).Error
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func (s *SQLiteStore) FindArchivesByFolder(ctx context.Context, folder string) ([]models.Archive, error) {
	var archives []models.Archive
	err := s.db.WithContext(ctx).
		Where("source_folder LIKE ?", "%"+folder+"%").
		Order("created_at DESC").
		Find(&archives).Error
	return archives, err
}

func (s *SQLiteStore) ListArchives(ctx context.Context) ([]models.Archive, error) {
	var archives []models.Archive
	err := s.db.WithContext(ctx).Order("archive_id").Find(&archives).Error
	return archives, err
}

func (s *SQLiteStore) ListArchivesByTape(ctx context.Context, tapeID uint) ([]models.Archive, error) {
	var archives []models.Archive
	err := s.db.WithContext(ctx).
		Where("tape_id = ?", tapeID).
		Order("position").
		Find(&archives).Error
	return archives, err
}

// CompleteArchive transitions an archive to its completed status and
// applies the tape accounting (cumulative size, last-written) in one
// transaction, so readers never observe the archive completed without
// the tape totals reflecting it.
func (s *SQLiteStore) CompleteArchive(ctx context.Context, id uint, checksum string, sizeBytes, fileCount int64) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archive models.Archive
		if err := tx.First(&archive, id).Error; err != nil {
			return err
		}
		if archive.Status.Terminal() {
			return fmt.Errorf("archive %d already in terminal status %q", id, archive.Status)
		}

		result := tx.Model(&models.Archive{}).Where("archive_id = ?", id).Updates(map[string]any{
			"status":     models.ArchiveStatusCompleted,
			"checksum":   checksum,
			"size_bytes": sizeBytes,
			"file_count": fileCount,
		})
		if result.Error != nil {
			return result.Error
		}

		return tx.Model(&models.Tape{}).Where("tape_id = ?", archive.TapeID).Updates(map[string]any{
			"total_size_bytes": gorm.Expr("total_size_bytes + ?", sizeBytes),
			"last_written":     now,
		}).Error
	})
}

// FailArchive moves a pending archive to a terminal failed status in a
// single write.
func (s *SQLiteStore) FailArchive(ctx context.Context, id uint, status models.ArchiveStatus) error {
	if !status.Terminal() || status == models.ArchiveStatusCompleted {
		return fmt.Errorf("%q is not a failed status", status)
	}
	result := s.db.WithContext(ctx).Model(&models.Archive{}).
		Where("archive_id = ? AND status = ?", id, models.ArchiveStatusStreaming).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FailStaleStreaming sweeps rows a crash left stuck in the pending
// streaming state. Run at startup, before any new jobs are accepted.
func (s *SQLiteStore) FailStaleStreaming(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Archive{}).
		Where("status = ?", models.ArchiveStatusStreaming).
		Update("status", models.ArchiveStatusStreamingFailed)
	return result.RowsAffected, result.Error
}

// DeleteArchive cascades file records and, for completed archives,
// subtracts the archive's size from the owning tape so the tape total
// stays the sum of its completed archives.
func (s *SQLiteStore) DeleteArchive(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archive models.Archive
		if err := tx.First(&archive, id).Error; err != nil {
			return err
		}
		if err := tx.Where("archive_id = ?", id).Delete(&models.FileRecord{}).Error; err != nil {
			return err
		}
		if archive.Status == models.ArchiveStatusCompleted {
			if err := tx.Model(&models.Tape{}).Where("tape_id = ?", archive.TapeID).
				Update("total_size_bytes", gorm.Expr("total_size_bytes - ?", archive.SizeBytes)).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Archive{}, id).Error
	})
}

// File operations

// AddFiles inserts file records in bounded batches.
func (s *SQLiteStore) AddFiles(ctx context.Context, archiveID uint, files []models.FileRecord) error {
	if len(files) == 0 {
		return nil
	}
	for i := range files {
		files[i].ArchiveID = archiveID
	}
	return s.db.WithContext(ctx).CreateInBatches(files, fileBatchSize).Error
}

func (s *SQLiteStore) ArchiveFiles(ctx context.Context, archiveID uint, limit int) ([]models.FileRecord, error) {
	var files []models.FileRecord
	query := s.db.WithContext(ctx).Where("archive_id = ?", archiveID).Order("file_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&files).Error
	return files, err
}

func (s *SQLiteStore) CountFiles(ctx context.Context, archiveID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.FileRecord{}).
		Where("archive_id = ?", archiveID).
		Count(&count).Error
	return count, err
}

// BackupTo copies the database file to the given path.
func (s *SQLiteStore) BackupTo(ctx context.Context, path string) error {
	if s.path == ":memory:" {
		return fmt.Errorf("cannot backup an in-memory database")
	}

	src, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}
	return dst.Sync()
}
