package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishk599/jobsieve/internal/model"
)

// Plan turns a job spec into its sequential steps: one per batch of
// messages for ingest jobs, one per query for search jobs. An unusable spec
// is reported as a fatal error.
func (d *Driver) Plan(spec *model.JobSpec) ([]model.Step, error) {
	if spec == nil {
		return nil, model.Fatal(errors.New("missing job spec"))
	}
	if spec.UserID == "" {
		return nil, model.Fatal(errors.New("job spec has no user id"))
	}

	switch spec.Kind {
	case model.JobIngest:
		return d.planIngest(spec)
	case model.JobSearch:
		return d.planSearch(spec)
	default:
		return nil, model.Fatal(fmt.Errorf("unknown job kind %q", spec.Kind))
	}
}

func (d *Driver) planIngest(spec *model.JobSpec) ([]model.Step, error) {
	if len(spec.Messages) == 0 {
		return nil, model.Fatal(errors.New("ingest job has no messages"))
	}
	size := spec.BatchSize
	if size <= 0 {
		size = d.batchSize
	}

	total := (len(spec.Messages) + size - 1) / size
	steps := make([]model.Step, 0, total)
	for i := 0; i < len(spec.Messages); i += size {
		b := newIngestBatch(spec.UserID, spec.Messages[i:min(i+size, len(spec.Messages))])
		steps = append(steps, d.step(fmt.Sprintf("batch %d/%d", len(steps)+1, total), b))
	}
	return steps, nil
}

func (d *Driver) planSearch(spec *model.JobSpec) ([]model.Step, error) {
	if len(spec.Queries) == 0 {
		return nil, model.Fatal(errors.New("search job has no queries"))
	}
	if d.searcher == nil {
		return nil, model.Fatal(errors.New("live search is not configured"))
	}

	steps := make([]model.Step, 0, len(spec.Queries))
	for _, q := range spec.Queries {
		if _, ok := model.ParseSourceKind(string(q.Source)); !ok || q.Source == model.SourceGeneric {
			return nil, model.Fatal(fmt.Errorf("cannot search source %q", q.Source))
		}
		b := newSearchBatch(spec.UserID, q)
		steps = append(steps, d.step(fmt.Sprintf("search %s %q", q.Source, q.Keywords), b))
	}
	return steps, nil
}

// step exposes a batch as a job step. Reruns after a failure continue the
// same batch; stats are recorded once, when the orchestrator is done with it.
func (d *Driver) step(name string, b *batch) model.Step {
	return model.Step{
		Name: name,
		Run: func(ctx context.Context) (model.BatchSummary, error) {
			return d.runBatch(ctx, b)
		},
		Done: func(ctx context.Context) {
			d.finishBatch(ctx, b)
		},
	}
}
