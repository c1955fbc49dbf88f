package models

import (
	"time"
)

// ArchiveStatus describes the write state of an archive. An archive row
// is created in a pending state before any bytes reach tape and
// transitions exactly once to a terminal status.
type ArchiveStatus string

const (
	ArchiveStatusStreaming       ArchiveStatus = "streaming_to_tape"
	ArchiveStatusStreamingFailed ArchiveStatus = "streaming_failed"
	ArchiveStatusCachingFailed   ArchiveStatus = "caching_failed"
	ArchiveStatusCompleted       ArchiveStatus = "completed"
)

// Terminal reports whether s is a final status.
func (s ArchiveStatus) Terminal() bool {
	switch s {
	case ArchiveStatusStreamingFailed, ArchiveStatusCachingFailed, ArchiveStatusCompleted:
		return true
	}
	return false
}

// Checksum placeholders for archives that do not yet (or will never)
// carry a verified digest.
const (
	ChecksumPending    = "pending"
	ChecksumUnverified = "unverified (streamed)"
)

// Archive represents one tar-format payload written to a tape, addressed
// by a 1-based file-mark position.
type Archive struct {
	ID     uint   `gorm:"primaryKey;column:archive_id"`
	TapeID uint   `gorm:"not null;index:idx_archives_tape"`
	Name   string `gorm:"type:text;not null;index:idx_archives_name"`

	SourceFolder string `gorm:"type:text;not null"`
	SizeBytes    int64  `gorm:"default:0"`
	FileCount    int64  `gorm:"default:0"`
	Checksum     string `gorm:"type:text"`
	Compression  bool   `gorm:"default:false"`

	// 1-based, strictly increasing per tape
	Position int           `gorm:"not null"`
	Status   ArchiveStatus `gorm:"type:text;default:'streaming_to_tape'"`

	CreatedAt time.Time `gorm:"index:idx_archives_date"`

	// Relationships
	Tape  Tape         `gorm:"foreignKey:TapeID;references:ID"`
	Files []FileRecord `gorm:"foreignKey:ArchiveID;constraint:OnDelete:CASCADE"`
}

// Verified reports whether the archive carries a real checksum rather
// than a placeholder.
func (a *Archive) Verified() bool {
	return a.Status == ArchiveStatusCompleted &&
		a.Checksum != "" && a.Checksum != ChecksumPending && a.Checksum != ChecksumUnverified
}
