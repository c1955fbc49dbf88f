package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/faults"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(log.NewLoggerService("test", config.LogServerConfig{Level: "error"}))
}

func TestSubmitCompletes(t *testing.T) {
	runner := newTestRunner(t)
	ctx := context.Background()

	job := runner.Submit(ctx, "archive", func(ctx context.Context, emit func(stage, message string)) (any, error) {
		emit("staging", "building archive")
		emit("writing", "streaming to device")
		return "done", nil
	})

	var stages []string
	for event := range job.Events() {
		assert.Equal(t, job.ID, event.JobID)
		stages = append(stages, event.Stage)
	}

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "done", job.Result)
	assert.Empty(t, job.Error)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, []string{"staging", "writing"}, stages)
}

func TestSubmitFailure(t *testing.T) {
	runner := newTestRunner(t)

	job := runner.Submit(context.Background(), "archive", func(ctx context.Context, emit func(stage, message string)) (any, error) {
		return nil, errors.New("device not accessible")
	})
	for range job.Events() {
	}

	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "device not accessible", job.Error)
}

func TestCancelRunningJob(t *testing.T) {
	runner := newTestRunner(t)
	started := make(chan struct{})

	job := runner.Submit(context.Background(), "recover", func(ctx context.Context, emit func(stage, message string)) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	require.NoError(t, runner.Cancel(job.ID))
	for range job.Events() {
	}

	assert.Equal(t, StatusCancelled, job.Status)

	err := runner.Cancel(job.ID)
	require.Error(t, err, "a finished job cannot be cancelled again")
	assert.True(t, faults.IsValidation(err))
}

func TestGetAndList(t *testing.T) {
	runner := newTestRunner(t)

	job := runner.Submit(context.Background(), "verify", func(ctx context.Context, emit func(stage, message string)) (any, error) {
		return nil, nil
	})
	for range job.Events() {
	}

	got, err := runner.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = runner.Get("missing")
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	assert.Len(t, runner.List(), 1)
}

func TestDrainWaitsForJobs(t *testing.T) {
	runner := newTestRunner(t)
	release := make(chan struct{})

	job := runner.Submit(context.Background(), "archive", func(ctx context.Context, emit func(stage, message string)) (any, error) {
		<-release
		return nil, nil
	})

	drainCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := runner.Drain(drainCtx)
	require.Error(t, err, "drain times out while the job is still running")

	close(release)
	require.NoError(t, runner.Drain(context.Background()))
	for range job.Events() {
	}
	assert.Equal(t, StatusCompleted, job.Status)
}
