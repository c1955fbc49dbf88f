package library

import (
	"context"
	"testing"
	"time"

	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCapacity = int64(1000)

func newTestOptimizer(t *testing.T) (*Optimizer, *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	catalog, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, catalog.Connect(ctx))
	require.NoError(t, catalog.Migrate(ctx))
	t.Cleanup(func() { catalog.Close() })

	logger := log.NewLoggerService("test", config.LogServerConfig{Level: "error"})
	return NewOptimizer(catalog, testCapacity, logger), catalog
}

func addTape(t *testing.T, catalog *store.SQLiteStore, label string, used int64, status models.TapeStatus) *models.Tape {
	t.Helper()
	tape := &models.Tape{Label: label, Device: "/dev/nst0", TotalSizeBytes: used, Status: status}
	require.NoError(t, catalog.CreateTape(context.Background(), tape))
	return tape
}

func TestSuggestBestTape(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	// 40% and 60% used; a 200-byte archive projects them to 60% and 80%.
	addTape(t, catalog, "LOW", 400, models.TapeStatusActive)
	addTape(t, catalog, "HIGH", 600, models.TapeStatusActive)
	addTape(t, catalog, "FULL", 990, models.TapeStatusActive)
	addTape(t, catalog, "RETIRED", 0, models.TapeStatusRetired)

	suggestion := optimizer.SuggestBestTape(ctx, 200)
	require.NotNil(t, suggestion)
	assert.Equal(t, "HIGH", suggestion.Label, "higher projected utilization wins below the threshold")
	assert.InDelta(t, 0.8, suggestion.ProjectedUtilization, 0.001)

	// Nothing fits a request larger than every remaining capacity.
	assert.Nil(t, optimizer.SuggestBestTape(ctx, 700))
}

func TestSuggestBestTapeNeverOverfills(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	addTape(t, catalog, "TIGHT", 950, models.TapeStatusActive)

	assert.Nil(t, optimizer.SuggestBestTape(ctx, 51))

	suggestion := optimizer.SuggestBestTape(ctx, 50)
	require.NotNil(t, suggestion)
	assert.GreaterOrEqual(t, suggestion.RemainingBytes, int64(50))
}

func TestSuggestBestTapeEfficiencyPenalty(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	// Projected 90% exceeds the threshold and scores 0.45 after the
	// halving; projected 60% wins despite the lower raw utilization.
	addTape(t, catalog, "OVER", 800, models.TapeStatusActive)
	addTape(t, catalog, "UNDER", 500, models.TapeStatusActive)

	suggestion := optimizer.SuggestBestTape(ctx, 100)
	require.NotNil(t, suggestion)
	assert.Equal(t, "UNDER", suggestion.Label)
}

func TestSuggestBestTapeTieBreaksByLowestID(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	first := addTape(t, catalog, "A", 500, models.TapeStatusActive)
	addTape(t, catalog, "B", 500, models.TapeStatusActive)

	suggestion := optimizer.SuggestBestTape(ctx, 100)
	require.NotNil(t, suggestion)
	assert.Equal(t, first.ID, suggestion.TapeID)
}

func TestOptimizeTapeUsage(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	// 20% and 25% combine to 45%, a valid consolidation pair; the 90%
	// tape stays out of every under-utilized list.
	addTape(t, catalog, "TWENTY", 200, models.TapeStatusActive)
	addTape(t, catalog, "QUARTER", 250, models.TapeStatusActive)
	addTape(t, catalog, "NINETY", 900, models.TapeStatusActive)
	addTape(t, catalog, "PACKED", 960, models.TapeStatusFull)

	report := optimizer.OptimizeTapeUsage(ctx)

	under := make([]string, 0, len(report.UnderUtilized))
	for _, u := range report.UnderUtilized {
		under = append(under, u.Label)
	}
	assert.ElementsMatch(t, []string{"TWENTY", "QUARTER"}, under)

	require.Len(t, report.Full, 1)
	assert.Equal(t, "PACKED", report.Full[0].Label)

	require.Len(t, report.Consolidations, 1)
	pair := report.Consolidations[0]
	assert.InDelta(t, 0.45, pair.CombinedUtilization, 0.001)
	assert.ElementsMatch(t, []string{"TWENTY", "QUARTER"}, []string{pair.First.Label, pair.Second.Label})
}

func TestDetectDuplicateArchives(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	tape := addTape(t, catalog, "TAPE001", 0, models.TapeStatusActive)
	base := time.Now().Add(-30 * 24 * time.Hour)

	add := func(name string, created time.Time, size int64) {
		archive := &models.Archive{
			TapeID:       tape.ID,
			Name:         name,
			SourceFolder: "/data/projects",
			SizeBytes:    size,
			Status:       models.ArchiveStatusCompleted,
		}
		require.NoError(t, catalog.CreateArchive(ctx, archive))
		require.NoError(t, catalog.DB().Model(archive).Update("created_at", created).Error)
	}

	add("projects_1.tar", base, 1000)
	add("projects_2.tar", base.Add(3*24*time.Hour), 1100)
	add("projects_3.tar", base.Add(20*24*time.Hour), 1200)

	pairs := optimizer.DetectDuplicateArchives(ctx)
	require.Len(t, pairs, 1, "only the pair within the window is flagged")
	assert.Equal(t, "projects_1.tar", pairs[0].FirstName)
	assert.Equal(t, "projects_2.tar", pairs[0].SecondName)
	assert.Equal(t, 3, pairs[0].DaysApart)
	assert.Equal(t, int64(100), pairs[0].SizeDelta)
}

func TestTapeHealthScores(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	addTape(t, catalog, "FRESH", 100, models.TapeStatusActive)
	aged := addTape(t, catalog, "AGED", 100, models.TapeStatusActive)
	addTape(t, catalog, "PACKED", 990, models.TapeStatusActive)
	addTape(t, catalog, "DAMAGED", 0, models.TapeStatusDamaged)
	addTape(t, catalog, "RETIRED", 0, models.TapeStatusRetired)

	fourYears := time.Now().Add(-4 * 365 * 24 * time.Hour)
	require.NoError(t, catalog.DB().Model(aged).Update("created_at", fourYears).Error)

	scores := optimizer.TapeHealthScores(ctx)
	byLabel := map[string]TapeHealth{}
	for _, s := range scores {
		byLabel[s.Label] = s
	}

	assert.Equal(t, 100, byLabel["FRESH"].Score)
	assert.Equal(t, GradeHealthy, byLabel["FRESH"].Grade)
	assert.Equal(t, 85, byLabel["AGED"].Score)
	assert.Equal(t, 90, byLabel["PACKED"].Score)
	assert.Equal(t, 0, byLabel["DAMAGED"].Score)
	assert.Equal(t, GradeCritical, byLabel["DAMAGED"].Grade)
	assert.Equal(t, 10, byLabel["RETIRED"].Score)
}

func TestScheduleMaintenanceTasks(t *testing.T) {
	optimizer, catalog := newTestOptimizer(t)
	ctx := context.Background()

	addTape(t, catalog, "DAMAGED", 0, models.TapeStatusDamaged)

	plan := optimizer.ScheduleMaintenanceTasks(ctx)
	require.NotEmpty(t, plan.Immediate, "a critical tape demands immediate action")
	assert.Contains(t, plan.Immediate[0].TapeLabels, "DAMAGED")
	require.NotEmpty(t, plan.Annual, "the standing audit task is always planned")
	assert.Equal(t, plan.Count(), len(plan.Immediate)+len(plan.Weekly)+len(plan.Monthly)+len(plan.Annual))
}
