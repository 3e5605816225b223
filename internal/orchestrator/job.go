package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

// Handlers are called from the job's dispatcher goroutine, one at a time and
// in event order. A handler must not block on the job it observes (for
// example by calling Wait on it).
type (
	ProgressHandler   func(model.ExecutionProgress)
	CompletionHandler func(model.JobResult)
	ErrorHandler      func(err error)
)

// EventType names what an Event reports.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventStopped   EventType = "stopped"
)

// Event is one entry of a job's ordered event stream.
type Event struct {
	Type     EventType                `json:"type"`
	JobID    string                   `json:"job_id"`
	Progress *model.ExecutionProgress `json:"progress,omitempty"`
	Result   *model.JobResult         `json:"result,omitempty"`
	Error    string                   `json:"error,omitempty"`

	err error
}

// subscriberBuffer is how many undelivered events a subscriber may lag
// behind before further events are dropped for it.
const subscriberBuffer = 64

type job struct {
	id   string
	spec *model.JobSpec

	ctx    context.Context // cancelled by Shutdown
	cancel context.CancelFunc
	events chan Event
	done   chan struct{} // closed once the dispatcher has drained events

	persistMu sync.Mutex

	mu          sync.Mutex
	cond        *sync.Cond
	snap        model.JobSnapshot
	summary     model.BatchSummary
	failedSteps int

	onProgress   []ProgressHandler
	onCompletion []CompletionHandler
	onError      []ErrorHandler
	subs         map[int]chan Event
	nextSub      int
	drained      bool
}

func newJob(id string, spec *model.JobSpec, now time.Time) *job {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:     id,
		spec:   spec,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		subs:   make(map[int]chan Event),
		snap: model.JobSnapshot{
			ID:        id,
			State:     model.JobPending,
			UpdatedAt: now,
		},
	}
	if spec != nil {
		j.snap.Name = spec.Name
		j.snap.Kind = spec.Kind
		j.snap.UserID = spec.UserID
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

func (j *job) snapshot() model.JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap
}

// transition moves the job to state to if its current state is one of from.
func (j *job) transition(to model.JobState, now time.Time, from ...model.JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !slices.Contains(from, j.snap.State) {
		return fmt.Errorf("%w: job %s is %s, cannot become %s", model.ErrInvalidTransition, j.id, j.snap.State, to)
	}
	j.snap.State = to
	j.snap.UpdatedAt = now
	j.cond.Broadcast()
	return nil
}

// finish records a terminal state set by the runner. It reports false when
// the job was stopped in the meantime.
func (j *job) finish(state model.JobState, err error, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.State == model.JobStopped {
		return false
	}
	j.snap.State = state
	j.snap.UpdatedAt = now
	if err != nil {
		j.snap.Error = err.Error()
	}
	j.cond.Broadcast()
	return true
}

// awaitState blocks while the job is in one of the given states and returns
// the first state outside them.
func (j *job) awaitState(while ...model.JobState) model.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	for slices.Contains(while, j.snap.State) {
		j.cond.Wait()
	}
	return j.snap.State
}

func (j *job) stopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.State == model.JobStopped
}

func (j *job) setTotal(n int, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.TotalSteps = n
	j.snap.UpdatedAt = now
}

// recordStep folds a finished step into the job counters.
func (j *job) recordStep(index int, name string, sum model.BatchSummary, err error, now time.Time) model.ExecutionProgress {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.summary.Add(sum)
	p := model.ExecutionProgress{
		JobID:       j.id,
		CurrentStep: index + 1,
		StepName:    name,
		TotalSteps:  j.snap.TotalSteps,
	}
	if err != nil {
		j.failedSteps++
		p.StepError = err.Error()
	} else {
		j.snap.CompletedSteps++
	}
	j.snap.ResultsFound = j.summary.Found
	j.snap.UpdatedAt = now

	p.CompletedSteps = j.snap.CompletedSteps
	p.FailedSteps = j.failedSteps
	p.ResultsFound = j.summary.Found
	return p
}

func (j *job) result() model.JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return model.JobResult{
		JobID:          j.id,
		Summary:        j.summary,
		CompletedSteps: j.snap.CompletedSteps,
		FailedSteps:    j.failedSteps,
	}
}

// dispatch delivers events to handlers and subscribers until the runner
// closes the event channel.
func (j *job) dispatch(logger *slog.Logger) {
	defer close(j.done)
	for ev := range j.events {
		j.deliver(ev, logger)
	}

	j.mu.Lock()
	j.drained = true
	for id, ch := range j.subs {
		close(ch)
		delete(j.subs, id)
	}
	j.mu.Unlock()
}

func (j *job) deliver(ev Event, logger *slog.Logger) {
	j.mu.Lock()
	progress := slices.Clone(j.onProgress)
	completion := slices.Clone(j.onCompletion)
	onError := slices.Clone(j.onError)
	for _, ch := range j.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("dropping job event for slow subscriber", "job", j.id, "type", ev.Type)
		}
	}
	j.mu.Unlock()

	switch ev.Type {
	case EventProgress:
		for _, h := range progress {
			safeCall(logger, j.id, func() { h(*ev.Progress) })
		}
	case EventCompleted:
		for _, h := range completion {
			safeCall(logger, j.id, func() { h(*ev.Result) })
		}
	case EventFailed:
		for _, h := range onError {
			safeCall(logger, j.id, func() { h(ev.err) })
		}
	}
}

func safeCall(logger *slog.Logger, jobID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job handler panicked", "job", jobID, "panic", r)
		}
	}()
	fn()
}

func (j *job) subscribe() (<-chan Event, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if j.drained {
		close(ch)
		return ch, func() {}
	}
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if c, ok := j.subs[id]; ok {
			close(c)
			delete(j.subs, id)
		}
	}
}
