package library

import (
	"context"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/pkg/db/models"
)

// duplicateWindow is how close two archives of the same source folder
// must be written to count as likely duplicates.
const duplicateWindow = 7 * 24 * time.Hour

// DuplicatePair flags two date-adjacent archives of the same source
// folder. Heuristic, not proof of duplication.
type DuplicatePair struct {
	SourceFolder string `json:"source_folder"`
	FirstID      uint   `json:"first_id"`
	FirstName    string `json:"first_name"`
	SecondID     uint   `json:"second_id"`
	SecondName   string `json:"second_name"`
	DaysApart    int    `json:"days_apart"`
	SizeDelta    int64  `json:"size_delta"`
	SizeDeltaStr string `json:"size_delta_human"`
}

// DetectDuplicateArchives groups completed archives by source folder
// and flags pairs written within the duplicate window. Advisory:
// returns nil on lookup failure.
func (o *Optimizer) DetectDuplicateArchives(ctx context.Context) []DuplicatePair {
	archives, err := o.catalog.ListArchives(ctx)
	if err != nil {
		o.log.Warn("Duplicate detection lookup failed: %v", err)
		return nil
	}

	byFolder := make(map[string][]models.Archive)
	for _, a := range archives {
		if a.Status != models.ArchiveStatusCompleted || a.SourceFolder == "" {
			continue
		}
		byFolder[a.SourceFolder] = append(byFolder[a.SourceFolder], a)
	}

	var pairs []DuplicatePair
	for folder, group := range byFolder {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			gap := cur.CreatedAt.Sub(prev.CreatedAt)
			if gap > duplicateWindow {
				continue
			}
			delta := cur.SizeBytes - prev.SizeBytes
			if delta < 0 {
				delta = -delta
			}
			pairs = append(pairs, DuplicatePair{
				SourceFolder: folder,
				FirstID:      prev.ID,
				FirstName:    prev.Name,
				SecondID:     cur.ID,
				SecondName:   cur.Name,
				DaysApart:    int(gap.Hours() / 24),
				SizeDelta:    delta,
				SizeDeltaStr: humanize.Bytes(uint64(delta)),
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].SourceFolder < pairs[j].SourceFolder
	})
	return pairs
}
