package models

import (
	"time"
)

// TapeStatus describes the lifecycle state of a physical tape.
type TapeStatus string

const (
	TapeStatusActive  TapeStatus = "active"
	TapeStatusFull    TapeStatus = "full"
	TapeStatusDamaged TapeStatus = "damaged"
	TapeStatusRetired TapeStatus = "retired"
)

// Tape represents a single physical sequential-access medium identified
// by a unique label and the device path it was last written through.
type Tape struct {
	ID     uint   `gorm:"primaryKey;column:tape_id"`
	Label  string `gorm:"type:text;not null;uniqueIndex:idx_tapes_label"`
	Device string `gorm:"type:text;not null"`

	// Cumulative accounting, mutated additively by completed archives
	TotalSizeBytes int64      `gorm:"default:0"`
	Compression    bool       `gorm:"default:false"`
	Status         TapeStatus `gorm:"type:text;default:'active'"`
	Notes          string     `gorm:"type:text"`

	CreatedAt   time.Time
	LastWritten *time.Time

	// Relationships
	Archives []Archive `gorm:"foreignKey:TapeID;constraint:OnDelete:CASCADE"`
}

// RemainingBytes reports free capacity against a nominal tape capacity.
func (t *Tape) RemainingBytes(capacity int64) int64 {
	return capacity - t.TotalSizeBytes
}

// Utilization reports used capacity as a 0..1 fraction.
func (t *Tape) Utilization(capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(t.TotalSizeBytes) / float64(capacity)
}
