package store

import (
	"context"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
)

// recentWindow bounds the recent-activity statistic.
const recentWindow = 30 * 24 * time.Hour

// Stats computes catalog-wide aggregates. Statistics are advisory and
// never sit on a critical path, so any internal failure yields the
// zero-valued report instead of an error.
func (s *SQLiteStore) Stats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{FileTypes: map[string]int64{}}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Tape{}).Count(&stats.TotalTapes).Error; err != nil {
		return stats, nil
	}
	db.Model(&models.Archive{}).Count(&stats.TotalArchives)
	db.Model(&models.FileRecord{}).Count(&stats.TotalFiles)

	db.Model(&models.FileRecord{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&stats.TotalFileBytes)
	db.Model(&models.Archive{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&stats.TotalArchiveBytes)
	db.Model(&models.Tape{}).
		Select("COALESCE(SUM(total_size_bytes), 0)").
		Scan(&stats.TotalTapeBytes)

	if stats.TotalArchives > 0 {
		db.Model(&models.Archive{}).
			Select("COALESCE(AVG(file_count), 0)").
			Scan(&stats.AvgFilesPerArch)
	}

	type typeRow struct {
		Type  string
		Count int64
	}
	var types []typeRow
	db.Model(&models.FileRecord{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Order("count DESC").
		Scan(&types)
	for _, row := range types {
		stats.FileTypes[row.Type] = row.Count
	}

	db.Model(&models.FileRecord{}).
		Select(fileHitColumns).
		Joins("JOIN archives ON archives.archive_id = files.archive_id").
		Joins("JOIN tapes ON tapes.tape_id = archives.tape_id").
		Order("files.size_bytes DESC").
		Limit(10).
		Scan(&stats.LargestFiles)

	db.Model(&models.Archive{}).
		Where("created_at >= ?", time.Now().UTC().Add(-recentWindow)).
		Count(&stats.RecentArchives)

	return stats, nil
}
