package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobsieve/internal/config"
	"github.com/amishk599/jobsieve/internal/model"
)

// --- Fake job runner ---

type FakeRunner struct {
	mu        sync.Mutex
	submitted []*model.JobSpec
	started   []string
	active    map[string]bool
	submitErr error
	startErr  error
}

func newFakeRunner() *FakeRunner {
	return &FakeRunner{active: make(map[string]bool)}
}

func (f *FakeRunner) Submit(spec *model.JobSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, spec)
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

func (f *FakeRunner) Start(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *FakeRunner) Active(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[name]
}

func (f *FakeRunner) setActive(name string, v bool) {
	f.mu.Lock()
	f.active[name] = v
	f.mu.Unlock()
}

func (f *FakeRunner) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func morningSearch() config.ScheduleConfig {
	return config.ScheduleConfig{
		Name:   "morning",
		Cron:   "0 8 * * *",
		UserID: "u1",
		Queries: []model.SearchQuery{
			{Source: model.SourceLinkedIn, Keywords: "golang", Location: "Remote"},
		},
	}
}

// --- Tests ---

func TestNew_InvalidCron(t *testing.T) {
	sc := morningSearch()
	sc.Cron = "every morning"
	if _, err := New(newFakeRunner(), []config.ScheduleConfig{sc}, discardLogger()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNew_DuplicateName(t *testing.T) {
	sc := morningSearch()
	if _, err := New(newFakeRunner(), []config.ScheduleConfig{sc, sc}, discardLogger()); err == nil {
		t.Fatal("expected error for duplicate schedule name")
	}
}

func TestTrigger_SubmitsAndStartsSearchJob(t *testing.T) {
	runner := newFakeRunner()
	s, err := New(runner, []config.ScheduleConfig{morningSearch()}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := s.Trigger("morning")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if id != "job-1" {
		t.Errorf("id = %q, want job-1", id)
	}

	spec := runner.submitted[0]
	if spec.Kind != model.JobSearch {
		t.Errorf("kind = %q, want search", spec.Kind)
	}
	if spec.Name != "morning" || spec.UserID != "u1" {
		t.Errorf("spec = %+v", spec)
	}
	if len(spec.Queries) != 1 || spec.Queries[0].Keywords != "golang" {
		t.Errorf("queries = %+v", spec.Queries)
	}
	if len(runner.started) != 1 || runner.started[0] != id {
		t.Errorf("started = %v, want [%s]", runner.started, id)
	}
	if last, ok := s.LastJob("morning"); !ok || last != id {
		t.Errorf("LastJob = %q, %v", last, ok)
	}
}

func TestTrigger_SkipsWhilePreviousJobActive(t *testing.T) {
	runner := newFakeRunner()
	s, err := New(runner, []config.ScheduleConfig{morningSearch()}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runner.setActive("morning", true)
	id, err := s.Trigger("morning")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty for skipped fire", id)
	}
	if runner.submissions() != 0 {
		t.Errorf("submissions = %d, want 0", runner.submissions())
	}

	runner.setActive("morning", false)
	if _, err := s.Trigger("morning"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if runner.submissions() != 1 {
		t.Errorf("submissions = %d, want 1", runner.submissions())
	}
}

func TestTrigger_UnknownSchedule(t *testing.T) {
	s, err := New(newFakeRunner(), nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Trigger("nope"); err == nil {
		t.Fatal("expected error for unknown schedule")
	}
}

func TestTrigger_SubmitErrorPropagates(t *testing.T) {
	runner := newFakeRunner()
	runner.submitErr = errors.New("orchestrator shut down")
	s, err := New(runner, []config.ScheduleConfig{morningSearch()}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Trigger("morning"); err == nil {
		t.Fatal("expected submit error")
	}
	if _, ok := s.LastJob("morning"); ok {
		t.Error("LastJob should not be recorded after a failed submit")
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	s, err := New(newFakeRunner(), []config.ScheduleConfig{morningSearch()}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_FiresOnSchedule(t *testing.T) {
	runner := newFakeRunner()
	sc := morningSearch()
	sc.Cron = "@every 1s"
	s, err := New(runner, []config.ScheduleConfig{sc}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for runner.submissions() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done

	if runner.submissions() == 0 {
		t.Fatal("expected at least one scheduled submission")
	}
}

func TestAddTask_InvalidSpec(t *testing.T) {
	s, err := New(newFakeRunner(), nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.AddTask("prune", "whenever", time.Second, func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for invalid task spec")
	}
}

func TestAddTask_RunsOnSchedule(t *testing.T) {
	s, err := New(newFakeRunner(), nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ran := make(chan struct{}, 4)
	err = s.AddTask("prune", "@every 1s", time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("task context has no deadline")
		}
		ran <- struct{}{}
		return errors.New("ignored")
	})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Error("task did not run")
	}
	cancel()
	<-done
}
