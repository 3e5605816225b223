package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobsieve/internal/config"
	"github.com/amishk599/jobsieve/internal/model"
)

// JobRunner is the part of the orchestrator the scheduler drives.
type JobRunner interface {
	Submit(spec *model.JobSpec) (string, error)
	Start(id string) error
	Active(name string) bool
}

// Scheduler submits a search job for each configured schedule whenever its
// cron expression fires. A schedule whose previous job is still active is
// skipped for that tick.
type Scheduler struct {
	jobs      JobRunner
	cron      *cron.Cron
	schedules map[string]config.ScheduleConfig
	logger    *slog.Logger

	mu      sync.Mutex
	lastJob map[string]string
}

// New registers every schedule with a cron instance. The instance is not
// started until Run.
func New(jobs JobRunner, schedules []config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		jobs:      jobs,
		schedules: make(map[string]config.ScheduleConfig, len(schedules)),
		logger:    logger,
		lastJob:   make(map[string]string),
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	for _, sc := range schedules {
		if _, dup := s.schedules[sc.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule %q", sc.Name)
		}
		name := sc.Name
		if _, err := s.cron.AddFunc(sc.Cron, func() { s.fire(name) }); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		s.schedules[sc.Name] = sc
	}
	return s, nil
}

// AddTask registers a maintenance function that runs on spec. Each run gets
// a context bounded by timeout; failures are logged.
func (s *Scheduler) AddTask(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error("scheduled task failed", "task", name, "error", err)
			return
		}
		s.logger.Debug("scheduled task finished", "task", name)
	})
	if err != nil {
		return fmt.Errorf("task %q: %w", name, err)
	}
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled. It returns nil
// on graceful shutdown after in-flight fires have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "schedules", len(s.schedules))
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// Trigger fires a schedule immediately, outside its cron timing. It returns
// the submitted job ID, or "" when the schedule was skipped.
func (s *Scheduler) Trigger(name string) (string, error) {
	sc, ok := s.schedules[name]
	if !ok {
		return "", fmt.Errorf("unknown schedule %q", name)
	}
	return s.submit(sc)
}

// LastJob returns the ID of the most recent job submitted for a schedule.
func (s *Scheduler) LastJob(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.lastJob[name]
	return id, ok
}

func (s *Scheduler) fire(name string) {
	if _, err := s.Trigger(name); err != nil {
		s.logger.Error("scheduled job failed to start", "schedule", name, "error", err)
	}
}

func (s *Scheduler) submit(sc config.ScheduleConfig) (string, error) {
	if s.jobs.Active(sc.Name) {
		s.logger.Info("skipping schedule, previous job still active", "schedule", sc.Name)
		return "", nil
	}

	id, err := s.jobs.Submit(&model.JobSpec{
		Name:    sc.Name,
		Kind:    model.JobSearch,
		UserID:  sc.UserID,
		Queries: sc.Queries,
	})
	if err != nil {
		return "", fmt.Errorf("submitting job: %w", err)
	}
	if err := s.jobs.Start(id); err != nil {
		return id, fmt.Errorf("starting job %s: %w", id, err)
	}

	s.mu.Lock()
	s.lastJob[sc.Name] = id
	s.mu.Unlock()

	s.logger.Info("scheduled job started", "schedule", sc.Name, "job", id, "queries", len(sc.Queries))
	return id, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
