package library

import (
	"context"
	"time"

	"github.com/mwantia/gotape/pkg/db/models"
)

// Health score deductions by tape age, status and utilization.
const (
	healthyScore = 80
	warningScore = 50
)

// HealthGrade buckets a tape health score.
type HealthGrade string

const (
	GradeHealthy  HealthGrade = "healthy"
	GradeWarning  HealthGrade = "warning"
	GradeCritical HealthGrade = "critical"
)

// TapeHealth is one tape's scored condition.
type TapeHealth struct {
	TapeID      uint        `json:"tape_id"`
	Label       string      `json:"label"`
	Score       int         `json:"score"`
	Grade       HealthGrade `json:"grade"`
	AgeYears    float64     `json:"age_years"`
	Utilization float64     `json:"utilization"`
	Reasons     []string    `json:"reasons,omitempty"`
}

// TapeHealthScores scores every tape from age, status and utilization.
// Advisory: returns nil on lookup failure.
func (o *Optimizer) TapeHealthScores(ctx context.Context) []TapeHealth {
	tapes, err := o.catalog.ListTapes(ctx)
	if err != nil {
		o.log.Warn("Health scoring lookup failed: %v", err)
		return nil
	}

	now := time.Now()
	scores := make([]TapeHealth, 0, len(tapes))
	for _, t := range tapes {
		scores = append(scores, o.scoreTape(&t, now))
	}
	return scores
}

func (o *Optimizer) scoreTape(t *models.Tape, now time.Time) TapeHealth {
	health := TapeHealth{
		TapeID:      t.ID,
		Label:       t.Label,
		Score:       100,
		AgeYears:    now.Sub(t.CreatedAt).Hours() / (24 * 365),
		Utilization: t.Utilization(o.capacity),
	}

	switch t.Status {
	case models.TapeStatusDamaged:
		health.Score = 0
		health.Reasons = append(health.Reasons, "tape is marked damaged")
	case models.TapeStatusRetired:
		health.Score = 10
		health.Reasons = append(health.Reasons, "tape is retired")
	default:
		switch {
		case health.AgeYears > 5:
			health.Score -= 30
			health.Reasons = append(health.Reasons, "tape is over five years old")
		case health.AgeYears > 3:
			health.Score -= 15
			health.Reasons = append(health.Reasons, "tape is over three years old")
		}
		if health.Utilization > 0.98 {
			health.Score -= 10
			health.Reasons = append(health.Reasons, "tape is nearly at capacity")
		}
	}

	switch {
	case health.Score >= healthyScore:
		health.Grade = GradeHealthy
	case health.Score >= warningScore:
		health.Grade = GradeWarning
	default:
		health.Grade = GradeCritical
	}
	return health
}
