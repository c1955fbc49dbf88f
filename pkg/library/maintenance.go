package library

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Maintenance thresholds.
const (
	wasteThresholdBytes = 500_000_000_000
	duplicateGroupLimit = 5
)

// MaintenancePriority buckets tasks by urgency.
type MaintenancePriority string

const (
	PriorityImmediate MaintenancePriority = "immediate"
	PriorityWeekly    MaintenancePriority = "weekly"
	PriorityMonthly   MaintenancePriority = "monthly"
	PriorityAnnual    MaintenancePriority = "annual"
)

// MaintenanceTask is one recommended operator action.
type MaintenanceTask struct {
	Priority   MaintenancePriority `json:"priority"`
	Action     string              `json:"action"`
	Reason     string              `json:"reason"`
	TapeLabels []string            `json:"tape_labels,omitempty"`
}

// MaintenancePlan groups tasks by priority bucket.
type MaintenancePlan struct {
	Immediate []MaintenanceTask `json:"immediate,omitempty"`
	Weekly    []MaintenanceTask `json:"weekly,omitempty"`
	Monthly   []MaintenanceTask `json:"monthly,omitempty"`
	Annual    []MaintenanceTask `json:"annual,omitempty"`
}

// Count returns the total number of planned tasks.
func (p *MaintenancePlan) Count() int {
	return len(p.Immediate) + len(p.Weekly) + len(p.Monthly) + len(p.Annual)
}

func (p *MaintenancePlan) add(task MaintenanceTask) {
	switch task.Priority {
	case PriorityImmediate:
		p.Immediate = append(p.Immediate, task)
	case PriorityWeekly:
		p.Weekly = append(p.Weekly, task)
	case PriorityMonthly:
		p.Monthly = append(p.Monthly, task)
	case PriorityAnnual:
		p.Annual = append(p.Annual, task)
	}
}

// ScheduleMaintenanceTasks derives a prioritized task list from health
// scores, usage analysis and duplicate detection. Advisory: returns an
// empty plan when the underlying analyses find nothing.
func (o *Optimizer) ScheduleMaintenanceTasks(ctx context.Context) *MaintenancePlan {
	plan := &MaintenancePlan{}

	for _, health := range o.TapeHealthScores(ctx) {
		if health.Grade != GradeCritical {
			continue
		}
		plan.add(MaintenanceTask{
			Priority:   PriorityImmediate,
			Action:     "migrate data off tape and replace it",
			Reason:     fmt.Sprintf("tape %s scored %d (critical)", health.Label, health.Score),
			TapeLabels: []string{health.Label},
		})
	}

	usage := o.OptimizeTapeUsage(ctx)
	if usage.WastedBytes > wasteThresholdBytes {
		labels := make([]string, 0, len(usage.UnderUtilized))
		for _, u := range usage.UnderUtilized {
			labels = append(labels, u.Label)
		}
		plan.add(MaintenanceTask{
			Priority:   PriorityWeekly,
			Action:     "consolidate under-utilized tapes",
			Reason:     fmt.Sprintf("%s of capacity sits on under-utilized tapes", humanize.Bytes(uint64(usage.WastedBytes))),
			TapeLabels: labels,
		})
	}
	for _, frag := range usage.Fragmented {
		plan.add(MaintenanceTask{
			Priority:   PriorityMonthly,
			Action:     "rewrite fragmented tape into fewer archives",
			Reason:     fmt.Sprintf("tape %s holds %d archives averaging under 100 MB", frag.Label, frag.ArchiveCount),
			TapeLabels: []string{frag.Label},
		})
	}

	if duplicates := o.DetectDuplicateArchives(ctx); len(duplicates) > duplicateGroupLimit {
		plan.add(MaintenanceTask{
			Priority: PriorityWeekly,
			Action:   "review likely duplicate archives",
			Reason:   fmt.Sprintf("%d duplicate archive pairs detected", len(duplicates)),
		})
	}

	plan.add(MaintenanceTask{
		Priority: PriorityAnnual,
		Action:   "run a full read verification across the library",
		Reason:   "regular media audit",
	})
	return plan
}
