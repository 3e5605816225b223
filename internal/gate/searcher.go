package gate

import (
	"context"
	"errors"

	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/search"
)

// GatedSearcher is a decorator that passes every search through the gate
// and records its outcome in the request log.
type GatedSearcher struct {
	inner search.Searcher
	gate  *Gate
}

// NewGatedSearcher wraps a Searcher with access control. All searchers for
// the same sources should share the same gate instance.
func NewGatedSearcher(inner search.Searcher, gate *Gate) *GatedSearcher {
	return &GatedSearcher{inner: inner, gate: gate}
}

// Search acquires a permit for q.Source, then delegates. The requested limit
// is capped at the source's MaxResultsPerQuery.
func (s *GatedSearcher) Search(ctx context.Context, q model.SearchQuery, limit int) (model.RawMessage, error) {
	permit, err := s.gate.Acquire(ctx, q.Source)
	if err != nil {
		return model.RawMessage{}, err
	}
	defer permit.Release()

	if limit <= 0 || limit > permit.Prefs.MaxResultsPerQuery {
		limit = permit.Prefs.MaxResultsPerQuery
	}
	msg, err := s.inner.Search(ctx, q, limit)

	status := model.RequestSuccess
	var httpErr *model.HTTPError
	switch {
	case errors.As(err, &httpErr) && httpErr.StatusCode == 429:
		status = model.RequestRateLimited
	case err != nil:
		status = model.RequestFailed
	}
	// Recording uses its own context so a cancelled search still counts.
	if recErr := s.gate.Record(context.WithoutCancel(ctx), q.Source, status); recErr != nil {
		s.gate.logger.Warn("recording request", "source", q.Source, "status", status, "error", recErr)
	}
	return msg, err
}
