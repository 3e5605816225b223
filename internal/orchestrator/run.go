package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/retry"
)

// run is the job's runner goroutine. It is the only writer of j.events.
func (o *Orchestrator) run(j *job) {
	defer close(j.events)
	defer j.cancel()

	if j.awaitState(model.JobPending) == model.JobStopped {
		o.emitStopped(j)
		return
	}

	steps, err := o.planner.Plan(j.spec)
	if err != nil {
		if !errors.Is(err, model.ErrJobFatal) {
			err = model.Fatal(err)
		}
		o.fail(j, fmt.Errorf("planning job: %w", err))
		return
	}
	j.setTotal(len(steps), o.now().UTC())
	o.persist(j)
	o.logger.Info("job running", "job", j.id, "steps", len(steps))

	for i, step := range steps {
		if j.awaitState(model.JobPaused) == model.JobStopped {
			o.emitStopped(j)
			return
		}

		sum, err := o.runStep(j, step)
		if step.Done != nil {
			step.Done(j.ctx)
		}
		if errors.Is(err, model.ErrJobFatal) {
			o.fail(j, fmt.Errorf("step %q: %w", step.Name, err))
			return
		}

		if err != nil {
			o.logger.Warn("step failed", "job", j.id, "step", step.Name, "error", err)
		} else {
			o.logger.Info("step finished", "job", j.id, "step", step.Name, "found", sum.Found, "added", sum.Added)
		}
		p := j.recordStep(i, step.Name, sum, err, o.now().UTC())
		o.persist(j)
		j.events <- Event{Type: EventProgress, JobID: j.id, Progress: &p}
	}

	// A pause that landed during the last step still holds the job.
	if j.awaitState(model.JobPaused) == model.JobStopped {
		o.emitStopped(j)
		return
	}
	if !j.finish(model.JobCompleted, nil, o.now().UTC()) {
		o.emitStopped(j)
		return
	}
	o.persist(j)
	res := j.result()
	o.logger.Info("job completed",
		"job", j.id,
		"completed_steps", res.CompletedSteps,
		"failed_steps", res.FailedSteps,
		"added", res.Summary.Added,
	)
	j.events <- Event{Type: EventCompleted, JobID: j.id, Result: &res}
}

func (o *Orchestrator) fail(j *job, err error) {
	if !j.finish(model.JobFailed, err, o.now().UTC()) {
		o.emitStopped(j)
		return
	}
	o.persist(j)
	o.logger.Error("job failed", "job", j.id, "error", err)
	j.events <- Event{Type: EventFailed, JobID: j.id, Error: err.Error(), err: err}
}

func (o *Orchestrator) emitStopped(j *job) {
	o.logger.Info("job ended after stop", "job", j.id)
	j.events <- Event{Type: EventStopped, JobID: j.id}
}

// runStep runs one step with a per-attempt timeout, retrying transient
// failures. A stop lets the attempt in flight finish but ends the retries.
// The job context is only cancelled by Shutdown.
func (o *Orchestrator) runStep(j *job, step model.Step) (model.BatchSummary, error) {
	timeout := o.cfg.StepTimeout
	if j.spec != nil && j.spec.StepTimeout > 0 {
		timeout = j.spec.StepTimeout
	}
	policy := retry.Policy{
		MaxRetries: o.cfg.RetryAttempts,
		BaseDelay:  o.cfg.RetryBaseDelay,
		Logger:     o.logger.With("job", j.id, "step", step.Name),
		Retryable: func(err error) bool {
			return !j.stopped() && retry.Transient(err)
		},
	}
	return retry.Do(j.ctx, policy, func(ctx context.Context) (model.BatchSummary, error) {
		return attempt(ctx, step, timeout)
	})
}

type stepResult struct {
	sum model.BatchSummary
	err error
}

// attempt runs step.Run in its own goroutine so that a step ignoring its
// context still cannot hold the job past the timeout.
func attempt(ctx context.Context, step model.Step, timeout time.Duration) (model.BatchSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stepResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stepResult{err: fmt.Errorf("step panicked: %v", r)}
			}
		}()
		sum, err := step.Run(ctx)
		done <- stepResult{sum: sum, err: err}
	}()

	select {
	case r := <-done:
		return r.sum, r.err
	case <-ctx.Done():
		return model.BatchSummary{}, fmt.Errorf("step did not finish within %s: %w", timeout, ctx.Err())
	}
}
