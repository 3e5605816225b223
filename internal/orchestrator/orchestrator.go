// Package orchestrator runs multi-step jobs in the background. Each job has
// a runner goroutine that executes its steps in order and a dispatcher
// goroutine that delivers progress, completion and error events to
// observers in the order they happened.
//
// A job moves through pending → running → {paused ⇄ running} →
// {completed | failed | stopped}. Pause and Stop take effect at the next
// step boundary: the step in flight finishes and is reported first.
// Completion handlers of a stopped job never run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobsieve/internal/model"
)

// ErrShutdown is returned by Submit after Shutdown.
var ErrShutdown = errors.New("orchestrator is shut down")

// Planner turns a job spec into sequential steps. Errors wrapping
// model.ErrJobFatal fail the job before any step runs.
type Planner interface {
	Plan(spec *model.JobSpec) ([]model.Step, error)
}

// Config tunes step execution.
type Config struct {
	// StepTimeout bounds one attempt of a step unless the job spec sets its own.
	StepTimeout time.Duration
	// RetryAttempts is how many times a transiently failing step is retried.
	RetryAttempts int
	// RetryBaseDelay is the first backoff delay, doubled per retry.
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 2 * time.Minute
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	return c
}

// Orchestrator owns the set of background jobs of this process.
type Orchestrator struct {
	planner Planner
	states  model.JobStateStore // optional
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	jobs   map[string]*job
	order  []string
	closed bool
}

// New returns an orchestrator. states may be nil, in which case job
// snapshots live only in memory.
func New(planner Planner, states model.JobStateStore, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		planner: planner,
		states:  states,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		jobs:    make(map[string]*job),
	}
}

// Submit registers a pending job and returns its ID. The spec is planned
// when the job is started; a nil or invalid spec fails the job then, so
// error handlers registered in between are notified.
func (o *Orchestrator) Submit(spec *model.JobSpec) (string, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrShutdown
	}
	if spec != nil {
		cp := *spec
		spec = &cp
	}
	j := newJob(o.newID(), spec, o.now().UTC())
	o.jobs[j.id] = j
	o.order = append(o.order, j.id)
	o.mu.Unlock()

	o.persist(j)
	o.logger.Info("job submitted", "job", j.id, "name", j.snap.Name, "kind", j.snap.Kind)

	go o.run(j)
	go j.dispatch(o.logger)
	return j.id, nil
}

func (o *Orchestrator) job(id string) (*job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrJobNotFound, id)
	}
	return j, nil
}

// OnProgress registers a handler called once per finished step.
func (o *Orchestrator) OnProgress(id string, h ProgressHandler) error {
	j, err := o.job(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.onProgress = append(j.onProgress, h)
	j.mu.Unlock()
	return nil
}

// OnCompletion registers a handler called when the job completes.
func (o *Orchestrator) OnCompletion(id string, h CompletionHandler) error {
	j, err := o.job(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.onCompletion = append(j.onCompletion, h)
	j.mu.Unlock()
	return nil
}

// OnError registers a handler called when the job fails.
func (o *Orchestrator) OnError(id string, h ErrorHandler) error {
	j, err := o.job(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.onError = append(j.onError, h)
	j.mu.Unlock()
	return nil
}

// Subscribe returns a channel carrying the job's events from now on. The
// channel is closed after the job's final event, or by the returned cancel
// function. Events are dropped for a subscriber that falls too far behind.
func (o *Orchestrator) Subscribe(id string) (<-chan Event, func(), error) {
	j, err := o.job(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := j.subscribe()
	return ch, cancel, nil
}

// Start moves a pending job to running.
func (o *Orchestrator) Start(id string) error {
	return o.control(id, "started", model.JobRunning, model.JobPending)
}

// Pause asks a running job to stop before its next step.
func (o *Orchestrator) Pause(id string) error {
	return o.control(id, "paused", model.JobPaused, model.JobRunning)
}

// Resume lets a paused job continue with its next step.
func (o *Orchestrator) Resume(id string) error {
	return o.control(id, "resumed", model.JobRunning, model.JobPaused)
}

// Stop ends a job that has not yet finished. A step in flight runs to
// completion and is reported; no further step starts.
func (o *Orchestrator) Stop(id string) error {
	return o.control(id, "stopped", model.JobStopped, model.JobPending, model.JobRunning, model.JobPaused)
}

func (o *Orchestrator) control(id, verb string, to model.JobState, from ...model.JobState) error {
	j, err := o.job(id)
	if err != nil {
		return err
	}
	if err := j.transition(to, o.now().UTC(), from...); err != nil {
		return err
	}
	o.persist(j)
	o.logger.Info("job "+verb, "job", id)
	return nil
}

// Status returns the latest snapshot of a job.
func (o *Orchestrator) Status(id string) (model.JobSnapshot, error) {
	j, err := o.job(id)
	if err != nil {
		return model.JobSnapshot{}, err
	}
	return j.snapshot(), nil
}

// List returns snapshots of all jobs in submission order.
func (o *Orchestrator) List() []model.JobSnapshot {
	o.mu.Lock()
	jobs := make([]*job, 0, len(o.order))
	for _, id := range o.order {
		jobs = append(jobs, o.jobs[id])
	}
	o.mu.Unlock()

	out := make([]model.JobSnapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.snapshot()
	}
	return out
}

// Active reports whether any job with the given name has not finished.
func (o *Orchestrator) Active(name string) bool {
	for _, s := range o.List() {
		if s.Name == name && !s.State.Terminal() {
			return true
		}
	}
	return false
}

// Wait blocks until the job has delivered its final event and returns its
// terminal state.
func (o *Orchestrator) Wait(ctx context.Context, id string) (model.JobState, error) {
	j, err := o.job(id)
	if err != nil {
		return "", err
	}
	select {
	case <-j.done:
		return j.snapshot().State, nil
	case <-ctx.Done():
		return j.snapshot().State, ctx.Err()
	}
}

// Shutdown refuses new jobs, stops every unfinished job, cancels the steps
// still in flight and waits for the job goroutines to exit or ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	jobs := make([]*job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	o.mu.Unlock()

	for _, j := range jobs {
		if !j.snapshot().State.Terminal() {
			if err := o.Stop(j.id); err != nil && !errors.Is(err, model.ErrInvalidTransition) {
				o.logger.Warn("stopping job on shutdown", "job", j.id, "error", err)
			}
		}
		j.cancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for jobs: %w", ctx.Err())
		}
	}
	return nil
}

// persist mirrors the job's current snapshot to the state store. Writes are
// serialised per job so the stored snapshot is never older than the last
// write. Failures are logged; the in-memory state stays authoritative.
func (o *Orchestrator) persist(j *job) {
	if o.states == nil {
		return
	}
	j.persistMu.Lock()
	defer j.persistMu.Unlock()

	snap := j.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.states.SaveJobState(ctx, snap); err != nil {
		o.logger.Warn("saving job state", "job", snap.ID, "state", snap.State, "error", err)
	}
}
