package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobsieve/internal/gate"
	"github.com/amishk599/jobsieve/internal/match"
	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/parser"
	"github.com/amishk599/jobsieve/internal/pipeline"
	"github.com/amishk599/jobsieve/internal/scoring"
	"github.com/amishk599/jobsieve/internal/settings"
	"github.com/amishk599/jobsieve/internal/store"
)

// lockedOnce fails the first insert of one company, as a busy database would.
type lockedOnce struct {
	*store.MemoryStore

	mu      sync.Mutex
	company string
	failed  bool
}

func (s *lockedOnce) InsertMatch(ctx context.Context, rec model.MatchRecord) (bool, error) {
	s.mu.Lock()
	fail := !s.failed && rec.Company == s.company
	if fail {
		s.failed = true
	}
	s.mu.Unlock()
	if fail {
		return false, errors.New("database is locked")
	}
	return s.MemoryStore.InsertMatch(ctx, rec)
}

// slowLookups delays every FindMatch so a stop can land mid-step.
type slowLookups struct {
	*store.MemoryStore
	delay time.Duration
}

func (s slowLookups) FindMatch(ctx context.Context, userID, key string) (*model.MatchRecord, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.FindMatch(ctx, userID, key)
}

const twoListingAlert = `Acme Corp
Senior Engineer
Acme Corp · London (Hybrid)
Beta Ltd
Senior Analyst
Beta Ltd · Leeds`

func newPipeline(t *testing.T, matches model.MatchStore) (*pipeline.Driver, *settings.Service) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := settings.NewService(st, settings.Defaults{Threshold: 0})
	_, err := svc.SetThreshold(context.Background(), 0)
	require.NoError(t, err)
	d := pipeline.NewDriver(pipeline.Deps{
		Parsers:  parser.NewRegistry(discardLogger()),
		Scorer:   scoring.NewScorer(nil, nil),
		Gate:     gate.New(svc, st, discardLogger()),
		Matches:  match.NewRepository(matches),
		Settings: svc,
		Logger:   discardLogger(),
	})
	return d, svc
}

func TestJob_RetriedStepCountsEveryMatchOnce(t *testing.T) {
	matches := &lockedOnce{MemoryStore: store.NewMemoryStore(), company: "Beta Ltd"}
	driver, svc := newPipeline(t, matches)
	o := New(driver, nil, testConfig(), discardLogger())

	id, err := o.Submit(&model.JobSpec{Kind: model.JobIngest, UserID: "u1", Messages: []model.RawMessage{
		{Source: model.SourceLinkedIn, Body: twoListingAlert, ReceivedAt: time.Now().UTC()},
	}})
	require.NoError(t, err)
	rec := record(t, o, id)
	require.NoError(t, o.Start(id))
	assert.Equal(t, model.JobCompleted, wait(t, o, id))

	stored, err := matches.ListMatches(context.Background(), "u1", model.MatchFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	progress, results, _ := rec.snapshot()
	require.Len(t, progress, 1)
	assert.Empty(t, progress[0].StepError)
	require.Len(t, results, 1)
	sum := results[0].Summary
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 2, sum.Found)
	assert.Equal(t, 2, sum.Added)
	assert.Zero(t, sum.Duplicates)
	assert.Zero(t, sum.Failed)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalProcessed)
	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 2, stats.TotalAdded)
}

func TestJob_StopMidStepFinishesBatch(t *testing.T) {
	matches := slowLookups{MemoryStore: store.NewMemoryStore(), delay: 20 * time.Millisecond}
	driver, svc := newPipeline(t, matches)
	o := New(driver, nil, testConfig(), discardLogger())

	msgs := make([]model.RawMessage, 5)
	for i := range msgs {
		msgs[i] = model.RawMessage{Source: model.SourceLinkedIn, Body: twoListingAlert, ReceivedAt: time.Now().UTC()}
	}
	id, err := o.Submit(&model.JobSpec{Kind: model.JobIngest, UserID: "u1", Messages: msgs, BatchSize: 5})
	require.NoError(t, err)
	rec := record(t, o, id)
	require.NoError(t, o.Start(id))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, o.Stop(id))
	assert.Equal(t, model.JobStopped, wait(t, o, id))

	progress, results, _ := rec.snapshot()
	require.Len(t, progress, 1)
	assert.Empty(t, progress[0].StepError)
	assert.Equal(t, 10, progress[0].ResultsFound)
	assert.Empty(t, results)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalProcessed)
	assert.Equal(t, 2, stats.TotalAdded)
}
