package models

import (
	"time"
)

// FileRecord represents one file inside an archived tree, indexed for
// search without mounting any tape. Records are immutable once written
// and removed only through the archive deletion cascade.
type FileRecord struct {
	ID        uint   `gorm:"primaryKey;column:file_id"`
	ArchiveID uint   `gorm:"not null;index:idx_files_archive"`
	Path      string `gorm:"type:text;not null;index:idx_files_path"`

	SizeBytes  int64     `gorm:"default:0"`
	ModifiedAt time.Time `gorm:"index:idx_files_modified"`
	Type       string    `gorm:"type:text;index:idx_files_type"`
	Checksum   string    `gorm:"type:text"`

	// Relationships
	Archive Archive `gorm:"foreignKey:ArchiveID;references:ID"`
}

func (FileRecord) TableName() string {
	return "files"
}
