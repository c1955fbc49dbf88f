package library

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/faults"
)

// MonthlyTrend aggregates archive activity for one calendar month.
type MonthlyTrend struct {
	Month        string `json:"month"`
	ArchiveCount int    `json:"archive_count"`
	TotalBytes   int64  `json:"total_bytes"`
	TotalHuman   string `json:"total_human"`
}

// LibraryReport is the full advisory picture of the tape library.
type LibraryReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	TapeCount   int              `json:"tape_count"`
	Usage       *UsageReport     `json:"usage"`
	Health      []TapeHealth     `json:"health"`
	Duplicates  []DuplicatePair  `json:"duplicates,omitempty"`
	Maintenance *MaintenancePlan `json:"maintenance"`
	Trends      []MonthlyTrend   `json:"trends,omitempty"`
}

// BuildReport runs every analysis and assembles the combined report.
func (o *Optimizer) BuildReport(ctx context.Context) *LibraryReport {
	report := &LibraryReport{
		GeneratedAt: time.Now(),
		Usage:       o.OptimizeTapeUsage(ctx),
		Health:      o.TapeHealthScores(ctx),
		Duplicates:  o.DetectDuplicateArchives(ctx),
		Maintenance: o.ScheduleMaintenanceTasks(ctx),
		Trends:      o.monthlyTrends(ctx),
	}
	report.TapeCount = len(report.Health)
	return report
}

// monthlyTrends buckets completed archives by creation month.
func (o *Optimizer) monthlyTrends(ctx context.Context) []MonthlyTrend {
	archives, err := o.catalog.ListArchives(ctx)
	if err != nil {
		return nil
	}

	byMonth := make(map[string]*MonthlyTrend)
	for _, a := range archives {
		if a.Status != models.ArchiveStatusCompleted {
			continue
		}
		key := a.CreatedAt.Format("2006-01")
		trend, ok := byMonth[key]
		if !ok {
			trend = &MonthlyTrend{Month: key}
			byMonth[key] = trend
		}
		trend.ArchiveCount++
		trend.TotalBytes += a.SizeBytes
	}

	trends := make([]MonthlyTrend, 0, len(byMonth))
	for _, trend := range byMonth {
		trend.TotalHuman = humanize.Bytes(uint64(trend.TotalBytes))
		trends = append(trends, *trend)
	}
	sort.Slice(trends, func(i, j int) bool {
		return trends[i].Month < trends[j].Month
	})
	return trends
}

// WriteJSON writes the report as indented JSON.
func (r *LibraryReport) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return faults.Database("library.report", "failed to encode report: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return faults.Database("library.report", "failed to write report: %v", err)
	}
	return nil
}

// WriteCSV writes the per-tape health table as CSV.
func (r *LibraryReport) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return faults.Database("library.report", "failed to create report: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"tape_id", "label", "score", "grade", "age_years", "utilization"}); err != nil {
		return err
	}
	for _, h := range r.Health {
		record := []string{
			fmt.Sprintf("%d", h.TapeID),
			h.Label,
			fmt.Sprintf("%d", h.Score),
			string(h.Grade),
			fmt.Sprintf("%.1f", h.AgeYears),
			fmt.Sprintf("%.2f", h.Utilization),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
