package model

import (
	"context"
	"time"
)

// JobKind selects how a job's steps are built.
type JobKind string

const (
	JobIngest JobKind = "ingest" // process supplied messages in batches
	JobSearch JobKind = "search" // run live searches through the access gate
)

// SearchQuery is one live search against a source.
type SearchQuery struct {
	Source   SourceKind `json:"source" yaml:"source"`
	Keywords string     `json:"keywords" yaml:"keywords"`
	Location string     `json:"location" yaml:"location"`
}

// JobSpec describes a unit of background work.
type JobSpec struct {
	Name        string        `json:"name"`
	Kind        JobKind       `json:"kind"`
	UserID      string        `json:"user_id"`
	Messages    []RawMessage  `json:"messages,omitempty"`
	BatchSize   int           `json:"batch_size,omitempty"`
	Queries     []SearchQuery `json:"queries,omitempty"`
	StepTimeout time.Duration `json:"step_timeout,omitempty"`
}

// JobState is a node in the job lifecycle.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobStopped   JobState = "stopped"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobStopped
}

// BatchSummary aggregates the outcome of processing a set of messages.
type BatchSummary struct {
	Processed      int `json:"processed"`
	Found          int `json:"found"`
	Added          int `json:"added"`
	BelowThreshold int `json:"below_threshold"`
	Duplicates     int `json:"duplicates"`
	Skipped        int `json:"skipped"` // messages from disabled sources
	Failed         int `json:"failed"`  // candidates lost to repository errors
}

// Add accumulates o into s.
func (s *BatchSummary) Add(o BatchSummary) {
	s.Processed += o.Processed
	s.Found += o.Found
	s.Added += o.Added
	s.BelowThreshold += o.BelowThreshold
	s.Duplicates += o.Duplicates
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Step is one unit of a job's execution. Steps run sequentially. Run may be
// called again after a transient failure; Done, when set, is called once
// after the last call.
type Step struct {
	Name string
	Run  func(ctx context.Context) (BatchSummary, error)
	Done func(ctx context.Context)
}

// ExecutionProgress is emitted once per finished step.
type ExecutionProgress struct {
	JobID          string `json:"job_id"`
	CurrentStep    int    `json:"current_step"` // 1-based
	StepName       string `json:"step_name"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
	ResultsFound   int    `json:"results_found"`
	FailedSteps    int    `json:"failed_steps"`
	StepError      string `json:"step_error,omitempty"`
}

// JobResult is the completion payload of a job.
type JobResult struct {
	JobID          string       `json:"job_id"`
	Summary        BatchSummary `json:"summary"`
	CompletedSteps int          `json:"completed_steps"`
	FailedSteps    int          `json:"failed_steps"`
}

// JobSnapshot is the latest known state of a job.
type JobSnapshot struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Kind           JobKind   `json:"kind"`
	UserID         string    `json:"user_id"`
	State          JobState  `json:"state"`
	CompletedSteps int       `json:"completed_steps"`
	TotalSteps     int       `json:"total_steps"`
	ResultsFound   int       `json:"results_found"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
