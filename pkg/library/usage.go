package library

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/pkg/db/models"
)

// Fragmentation heuristics: a tape holding many small archives is a
// candidate for rewriting into fewer larger ones.
const (
	fragmentedArchiveCount = 50
	fragmentedAvgSize      = 100 * 1024 * 1024
)

// TapeUsage carries one tape's utilization numbers.
type TapeUsage struct {
	TapeID       uint    `json:"tape_id"`
	Label        string  `json:"label"`
	UsedBytes    int64   `json:"used_bytes"`
	UsedHuman    string  `json:"used_human"`
	Utilization  float64 `json:"utilization"`
	ArchiveCount int     `json:"archive_count"`
}

// ConsolidationPair proposes merging two under-utilized tapes.
type ConsolidationPair struct {
	First               TapeUsage `json:"first"`
	Second              TapeUsage `json:"second"`
	CombinedUtilization float64   `json:"combined_utilization"`
	FreedTapes          int       `json:"freed_tapes"`
}

// UsageReport classifies tapes by utilization and proposes
// consolidation pairs.
type UsageReport struct {
	UnderUtilized  []TapeUsage         `json:"under_utilized"`
	Full           []TapeUsage         `json:"full"`
	Fragmented     []TapeUsage         `json:"fragmented"`
	Consolidations []ConsolidationPair `json:"consolidations"`
	WastedBytes    int64               `json:"wasted_bytes"`
}

// OptimizeTapeUsage classifies active tapes as under-utilized, full or
// fragmented, and pairs up under-utilized tapes whose combined content
// still fits a single tape. Advisory: returns an empty report on
// lookup failure.
func (o *Optimizer) OptimizeTapeUsage(ctx context.Context) *UsageReport {
	report := &UsageReport{}

	tapes, err := o.catalog.ListTapes(ctx)
	if err != nil {
		o.log.Warn("Usage analysis lookup failed: %v", err)
		return report
	}

	for _, t := range tapes {
		if t.Status != models.TapeStatusActive && t.Status != models.TapeStatusFull {
			continue
		}
		archives, err := o.catalog.ListArchivesByTape(ctx, t.ID)
		if err != nil {
			continue
		}
		usage := TapeUsage{
			TapeID:       t.ID,
			Label:        t.Label,
			UsedBytes:    t.TotalSizeBytes,
			UsedHuman:    humanize.Bytes(uint64(t.TotalSizeBytes)),
			Utilization:  t.Utilization(o.capacity),
			ArchiveCount: len(archives),
		}

		switch {
		case usage.Utilization > fullThreshold:
			report.Full = append(report.Full, usage)
		case usage.Utilization < underUtilized:
			report.UnderUtilized = append(report.UnderUtilized, usage)
			report.WastedBytes += o.capacity - t.TotalSizeBytes
		}
		if len(archives) > fragmentedArchiveCount &&
			t.TotalSizeBytes/int64(len(archives)) < fragmentedAvgSize {
			report.Fragmented = append(report.Fragmented, usage)
		}
	}

	report.Consolidations = o.pairForConsolidation(report.UnderUtilized)
	return report
}

// pairForConsolidation greedily pairs under-utilized tapes whose
// combined utilization stays within the consolidation limit. Each tape
// is used at most once.
func (o *Optimizer) pairForConsolidation(candidates []TapeUsage) []ConsolidationPair {
	sorted := make([]TapeUsage, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Utilization < sorted[j].Utilization
	})

	var pairs []ConsolidationPair
	used := make(map[uint]bool)
	for i := 0; i < len(sorted); i++ {
		if used[sorted[i].TapeID] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if used[sorted[j].TapeID] {
				continue
			}
			combined := sorted[i].Utilization + sorted[j].Utilization
			if combined >= consolidationLimit {
				continue
			}
			pairs = append(pairs, ConsolidationPair{
				First:               sorted[i],
				Second:              sorted[j],
				CombinedUtilization: combined,
				FreedTapes:          1,
			})
			used[sorted[i].TapeID] = true
			used[sorted[j].TapeID] = true
			break
		}
	}
	return pairs
}

// Describe renders a consolidation pair for operator output.
func (p ConsolidationPair) Describe() string {
	return fmt.Sprintf("merge %s (%.0f%%) and %s (%.0f%%) onto one tape (%.0f%% combined)",
		p.First.Label, p.First.Utilization*100,
		p.Second.Label, p.Second.Utilization*100,
		p.CombinedUtilization*100)
}
