package library

import (
	"context"
	"sort"

	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/log"
)

// Utilization thresholds for the greedy allocation heuristics.
const (
	efficiencyThreshold = 0.85
	underUtilized       = 0.30
	fullThreshold       = 0.95
	consolidationLimit  = 0.90
)

// Optimizer analyzes catalog state and produces advisory allocation,
// consolidation and maintenance recommendations. It only reads the
// catalog; on lookup failure every operation returns an empty result.
type Optimizer struct {
	catalog  store.CatalogStore
	capacity int64
	log      log.LoggerService
}

func NewOptimizer(catalog store.CatalogStore, capacityBytes int64, logger log.LoggerService) *Optimizer {
	if capacityBytes <= 0 {
		capacityBytes = 6_000_000_000_000
	}
	return &Optimizer{
		catalog:  catalog,
		capacity: capacityBytes,
		log:      logger.Named("library"),
	}
}

// TapeSuggestion is one scored allocation candidate.
type TapeSuggestion struct {
	TapeID               uint    `json:"tape_id"`
	Label                string  `json:"label"`
	RemainingBytes       int64   `json:"remaining_bytes"`
	ProjectedUtilization float64 `json:"projected_utilization"`
	Score                float64 `json:"score"`
}

// SuggestBestTape picks the active tape that fits estimatedSize with
// the best projected utilization. Tapes pushed past the efficiency
// threshold score half. Greedy, not optimal bin packing. Returns nil
// when no tape fits.
func (o *Optimizer) SuggestBestTape(ctx context.Context, estimatedSize int64) *TapeSuggestion {
	tapes, err := o.catalog.ListTapes(ctx)
	if err != nil {
		o.log.Warn("Tape suggestion lookup failed: %v", err)
		return nil
	}

	var candidates []TapeSuggestion
	for _, t := range tapes {
		if t.Status != models.TapeStatusActive {
			continue
		}
		remaining := t.RemainingBytes(o.capacity)
		if remaining < estimatedSize {
			continue
		}
		projected := float64(t.TotalSizeBytes+estimatedSize) / float64(o.capacity)
		score := projected
		if projected > efficiencyThreshold {
			score /= 2
		}
		candidates = append(candidates, TapeSuggestion{
			TapeID:               t.ID,
			Label:                t.Label,
			RemainingBytes:       remaining,
			ProjectedUtilization: projected,
			Score:                score,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	// Highest score wins, ties broken by lowest tape id.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].TapeID < candidates[j].TapeID
	})
	best := candidates[0]
	return &best
}
