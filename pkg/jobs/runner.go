package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/gotape/pkg/faults"
	"github.com/mwantia/gotape/pkg/log"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Event is one progress update published on a job's channel.
type Event struct {
	JobID   string    `json:"job_id"`
	Stage   string    `json:"stage"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// JobFunc is the unit of work a job executes. It receives the job's
// context for cancellation and an emit callback for progress events.
type JobFunc func(ctx context.Context, emit func(stage, message string)) (any, error)

// Job is one background unit of work. Result and Error are only valid
// once Status is terminal.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     JobStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`

	events chan Event
	cancel context.CancelFunc
}

// Events returns the job's progress channel. The channel is closed
// when the job reaches a terminal status.
func (j *Job) Events() <-chan Event {
	return j.events
}

// Runner executes jobs on one goroutine each and tracks their state.
type Runner struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
	log  log.LoggerService
}

func NewRunner(logger log.LoggerService) *Runner {
	return &Runner{
		jobs: make(map[string]*Job),
		log:  logger.Named("jobs"),
	}
}

// Submit starts fn on its own goroutine and returns the tracking
// handle immediately.
func (r *Runner) Submit(ctx context.Context, kind string, fn JobFunc) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		StartedAt: time.Now(),
		events:    make(chan Event, 64),
		cancel:    cancel,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(jobCtx, job, fn)
	return job
}

func (r *Runner) run(ctx context.Context, job *Job, fn JobFunc) {
	defer r.wg.Done()
	defer close(job.events)
	defer job.cancel()

	r.setStatus(job, StatusRunning)
	r.log.Info("Job %s (%s) started", job.ID, job.Kind)

	emit := func(stage, message string) {
		event := Event{JobID: job.ID, Stage: stage, Message: message, Time: time.Now()}
		select {
		case job.events <- event:
		default:
			// Slow consumers drop events rather than stall the job.
		}
	}

	result, err := fn(ctx, emit)

	r.mu.Lock()
	now := time.Now()
	job.FinishedAt = &now
	job.Result = result
	switch {
	case ctx.Err() != nil && err != nil:
		job.Status = StatusCancelled
		job.Error = err.Error()
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
	default:
		job.Status = StatusCompleted
	}
	status := job.Status
	r.mu.Unlock()

	r.log.Info("Job %s (%s) finished with status %s", job.ID, job.Kind, status)
}

func (r *Runner) setStatus(job *Job, status JobStatus) {
	r.mu.Lock()
	job.Status = status
	r.mu.Unlock()
}

// Get returns a job by id.
func (r *Runner) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, faults.Validation("jobs", "no job with id %q", id)
	}
	return job, nil
}

// List returns all tracked jobs.
func (r *Runner) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		list = append(list, job)
	}
	return list
}

// Cancel requests cancellation of a running job. The job's context is
// cancelled; the work function is responsible for moving any pending
// catalog rows to a failed state on its way out.
func (r *Runner) Cancel(id string) error {
	job, err := r.Get(id)
	if err != nil {
		return err
	}
	r.mu.RLock()
	terminal := job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled
	r.mu.RUnlock()
	if terminal {
		return faults.Validation("jobs", "job %q already finished", id)
	}
	job.cancel()
	return nil
}

// Drain blocks until every job has finished or the context expires.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return faults.Validation("jobs", "timed out waiting for jobs to finish")
	}
}
