package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amishk599/jobsieve/internal/model"
)

// batch is one unit of pipeline work that may be run more than once. Each
// message is admitted and parsed at most once, and a rerun only stores the
// candidates a previous run failed to store, so counters and notifications
// never repeat.
type batch struct {
	userID string
	query  *model.SearchQuery // set for a live search batch

	run chan struct{} // held by the running attempt

	// Owned by the running attempt.
	loaded    bool
	threshold int
	limit     int
	queue     []queued
	pending   []model.Candidate

	mu  sync.Mutex
	sum model.BatchSummary
}

type queued struct {
	msg     model.RawMessage
	counted bool
}

func newIngestBatch(userID string, msgs []model.RawMessage) *batch {
	b := &batch{userID: userID, run: make(chan struct{}, 1)}
	b.queue = make([]queued, len(msgs))
	for i, m := range msgs {
		b.queue[i] = queued{msg: m}
	}
	return b
}

func newSearchBatch(userID string, q model.SearchQuery) *batch {
	return &batch{userID: userID, query: &q, run: make(chan struct{}, 1)}
}

// summary returns the counters accumulated so far and whether the batch got
// past loading its settings.
func (b *batch) summary() (model.BatchSummary, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sum, b.loaded
}

// runBatch admits whatever is still queued and stores every pending
// candidate. The returned summary covers all runs of b; Failed is the
// number of candidates that are still unstored.
func (d *Driver) runBatch(ctx context.Context, b *batch) (model.BatchSummary, error) {
	select {
	case b.run <- struct{}{}:
	case <-ctx.Done():
		return model.BatchSummary{}, ctx.Err()
	}
	defer func() { <-b.run }()

	if !b.loaded {
		if err := d.load(ctx, b); err != nil {
			return model.BatchSummary{}, err
		}
	}

	sum, _ := b.summary()
	var errs []error

	left := b.queue[:0]
	for i, q := range b.queue {
		if err := ctx.Err(); err != nil {
			left = append(left, b.queue[i:]...)
			errs = append(errs, err)
			break
		}
		if !q.counted {
			sum.Processed++
			q.counted = true
		}

		if b.query == nil {
			decision, err := d.gate.Permitted(ctx, q.msg.Source)
			if err != nil {
				left = append(left, q)
				errs = append(errs, err)
				continue
			}
			if !decision.Allowed {
				sum.Skipped++
				d.logger.Debug("skipping message", "source", q.msg.Source, "reason", decision.Reason)
				continue
			}
		}

		candidates := d.parsers.Parse(q.msg)
		if b.limit > 0 && len(candidates) > b.limit {
			candidates = candidates[:b.limit]
		}
		sum.Found += len(candidates)
		for _, c := range candidates {
			c.RawScore = d.scorer.Score(c, q.msg.Body)
			b.pending = append(b.pending, c)
		}
	}
	b.queue = left

	var added []model.MatchRecord
	unstored := b.pending[:0]
	for _, c := range b.pending {
		res, err := d.matches.TryInsert(ctx, b.userID, c, b.threshold)
		switch {
		case err != nil:
			unstored = append(unstored, c)
			errs = append(errs, fmt.Errorf("storing %q at %q: %w", c.Title, c.Company, err))
		case res.BelowThreshold:
			sum.BelowThreshold++
		case res.Duplicate:
			sum.Duplicates++
		case res.Inserted:
			sum.Added++
			added = append(added, *res.Record)
		}
	}
	b.pending = unstored
	sum.Failed = len(b.pending)

	b.mu.Lock()
	b.sum = sum
	b.mu.Unlock()

	d.notify(b.userID, added)
	return sum, errors.Join(errs...)
}

// load reads the threshold and, for a search batch, fetches the results
// page. A failed fetch leaves the batch unloaded so a rerun fetches again.
func (d *Driver) load(ctx context.Context, b *batch) error {
	threshold, err := d.settings.Threshold(ctx)
	if err != nil {
		return err
	}

	if q := b.query; q != nil {
		if d.searcher == nil {
			return model.Fatal(errors.New("live search is not configured"))
		}
		prefs, err := d.settings.AccessPreferences(ctx, q.Source)
		if err != nil {
			return err
		}
		msg, err := d.searcher.Search(ctx, *q, prefs.MaxResultsPerQuery)
		if err != nil {
			return fmt.Errorf("searching %s for %q: %w", q.Source, q.Keywords, err)
		}
		msg.Source = q.Source
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = d.now().UTC()
		}
		b.queue = []queued{{msg: msg}}
		b.limit = prefs.MaxResultsPerQuery
	}

	b.threshold = threshold
	b.mu.Lock()
	b.loaded = true
	b.mu.Unlock()
	return nil
}

// finishBatch folds a batch into the stats once no further runs will happen.
func (d *Driver) finishBatch(ctx context.Context, b *batch) {
	sum, loaded := b.summary()
	if !loaded {
		return
	}
	d.record(ctx, b.userID, sum)
}
