package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mwantia/gotape/pkg/db/models"
	"gorm.io/gorm"
)

const fileHitColumns = "files.file_id, files.path, files.size_bytes, files.modified_at, files.type, " +
	"archives.archive_id, archives.name AS archive_name, " +
	"tapes.tape_id, tapes.label AS tape_label, tapes.device AS tape_device"

func (s *SQLiteStore) fileHitQuery(ctx context.Context, filter SearchFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.FileRecord{}).
		Select(fileHitColumns).
		Joins("JOIN archives ON archives.archive_id = files.archive_id").
		Joins("JOIN tapes ON tapes.tape_id = archives.tape_id")

	if filter.Query != "" {
		query = query.Where("files.path LIKE ?", "%"+filter.Query+"%")
	}
	if filter.FileType != "" {
		query = query.Where("files.type = ?", filter.FileType)
	}
	if filter.TapeID != 0 {
		query = query.Where("tapes.tape_id = ?", filter.TapeID)
	}
	if filter.ArchiveID != 0 {
		query = query.Where("archives.archive_id = ?", filter.ArchiveID)
	}
	if filter.MinSize > 0 {
		query = query.Where("files.size_bytes >= ?", filter.MinSize)
	}
	if filter.MaxSize > 0 {
		query = query.Where("files.size_bytes <= ?", filter.MaxSize)
	}
	if !filter.DateFrom.IsZero() {
		query = query.Where("files.modified_at >= ?", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query = query.Where("files.modified_at <= ?", filter.DateTo)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	return query
}

// SearchFiles runs a composable filtered search across the joined
// catalog tables.
func (s *SQLiteStore) SearchFiles(ctx context.Context, filter SearchFilter) ([]FileHit, error) {
	var hits []FileHit
	err := s.fileHitQuery(ctx, filter).Order("files.path").Scan(&hits).Error
	return hits, err
}

// RegexSearchFiles applies the SQL-level filters first, then the regular
// expression over the path of each candidate row. The pattern is
// validated up front so a bad expression fails before touching the
// database.
func (s *SQLiteStore) RegexSearchFiles(ctx context.Context, pattern string, filter SearchFilter) ([]FileHit, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern: %w", err)
	}

	// Regex matching happens in Go, so the substring shortcut must not
	// pre-filter rows the expression could still match.
	limit := filter.Limit
	filter.Query = ""
	filter.Limit = 0

	candidates, err := s.SearchFiles(ctx, filter)
	if err != nil {
		return nil, err
	}

	var hits []FileHit
	for _, hit := range candidates {
		if re.MatchString(hit.Path) {
			hits = append(hits, hit)
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
	}
	return hits, nil
}

// FindDuplicateFiles groups files by the selected key and returns groups
// with more than one member, largest groups first.
func (s *SQLiteStore) FindDuplicateFiles(ctx context.Context, criteria DuplicateCriteria) ([]DuplicateGroup, error) {
	query := s.db.WithContext(ctx).Model(&models.FileRecord{})

	switch criteria {
	case DuplicatesByName:
		query = query.Select("path, COUNT(*) AS count").
			Group("path")
	case DuplicatesBySize:
		query = query.Select("size_bytes, COUNT(*) AS count").
			Where("size_bytes > 0").
			Group("size_bytes")
	case DuplicatesByNameAndSize:
		query = query.Select("path, size_bytes, COUNT(*) AS count").
			Group("path, size_bytes")
	default:
		return nil, fmt.Errorf("unknown duplicate criteria %q", criteria)
	}

	var groups []DuplicateGroup
	err := query.Having("COUNT(*) > 1").Order("count DESC").Scan(&groups).Error
	return groups, err
}
