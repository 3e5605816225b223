// Package settings holds the persisted, user-editable state the pipeline
// reads: the score threshold, per-source access preferences and batch stats.
// Every write is validated and clamped before it reaches the store.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

const (
	thresholdKey    = "score_threshold"
	statsKey        = "stats"
	accessKeyPrefix = "access_prefs:"

	DefaultThreshold = 80
)

// Stats accumulates processMessages results across calls.
type Stats struct {
	TotalProcessed  int       `json:"total_processed"`
	TotalFound      int       `json:"total_found"`
	TotalAdded      int       `json:"total_added"`
	LastProcessedAt time.Time `json:"last_processed_at"`
}

// Defaults are used for keys that have never been written.
type Defaults struct {
	Threshold int
	Access    map[model.SourceKind]model.AccessPreferences
}

// Service reads and writes settings through a key-value store.
type Service struct {
	kv       model.KVStore
	defaults Defaults
	statsMu  sync.Mutex
}

// NewService returns a settings service. A zero Defaults.Threshold means
// DefaultThreshold.
func NewService(kv model.KVStore, defaults Defaults) *Service {
	if defaults.Threshold == 0 {
		defaults.Threshold = DefaultThreshold
	}
	defaults.Threshold = clampThreshold(defaults.Threshold)
	return &Service{kv: kv, defaults: defaults}
}

func clampThreshold(v int) int {
	return min(max(v, 0), 100)
}

// Threshold returns the minimum score a candidate needs to be stored.
func (s *Service) Threshold(ctx context.Context) (int, error) {
	raw, ok, err := s.kv.GetValue(ctx, thresholdKey)
	if err != nil {
		return 0, model.RepositoryError("reading threshold", err)
	}
	if !ok {
		return s.defaults.Threshold, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return s.defaults.Threshold, nil
	}
	return clampThreshold(v), nil
}

// SetThreshold stores v clamped to 0-100 and returns the stored value.
func (s *Service) SetThreshold(ctx context.Context, v int) (int, error) {
	v = clampThreshold(v)
	if err := s.kv.PutValue(ctx, thresholdKey, strconv.Itoa(v)); err != nil {
		return 0, model.RepositoryError("writing threshold", err)
	}
	return v, nil
}

// AccessPreferences returns the stored preferences for source, or its
// configured default.
func (s *Service) AccessPreferences(ctx context.Context, source model.SourceKind) (model.AccessPreferences, error) {
	raw, ok, err := s.kv.GetValue(ctx, accessKeyPrefix+string(source))
	if err != nil {
		return model.AccessPreferences{}, model.RepositoryError("reading access preferences", err)
	}
	if !ok {
		return s.defaultAccess(source), nil
	}
	var prefs model.AccessPreferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return s.defaultAccess(source), nil
	}
	return prefs.Clamp(), nil
}

func (s *Service) defaultAccess(source model.SourceKind) model.AccessPreferences {
	if p, ok := s.defaults.Access[source]; ok {
		return p.Clamp()
	}
	return model.DefaultAccessPreferences()
}

// SetAccessPreferences clamps prefs into safe bounds, stores them and returns
// what was stored.
func (s *Service) SetAccessPreferences(ctx context.Context, source model.SourceKind, prefs model.AccessPreferences) (model.AccessPreferences, error) {
	prefs = prefs.Clamp()
	raw, err := json.Marshal(prefs)
	if err != nil {
		return model.AccessPreferences{}, fmt.Errorf("encoding access preferences: %w", err)
	}
	if err := s.kv.PutValue(ctx, accessKeyPrefix+string(source), string(raw)); err != nil {
		return model.AccessPreferences{}, model.RepositoryError("writing access preferences", err)
	}
	return prefs, nil
}

// Stats returns the accumulated batch statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	raw, ok, err := s.kv.GetValue(ctx, statsKey)
	if err != nil {
		return Stats{}, model.RepositoryError("reading stats", err)
	}
	var st Stats
	if !ok {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return Stats{}, nil
	}
	return st, nil
}

// RecordBatch adds one batch's counters to the stored stats.
func (s *Service) RecordBatch(ctx context.Context, sum model.BatchSummary, at time.Time) error {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	st.TotalProcessed += sum.Processed
	st.TotalFound += sum.Found
	st.TotalAdded += sum.Added
	st.LastProcessedAt = at.UTC()

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := s.kv.PutValue(ctx, statsKey, string(raw)); err != nil {
		return model.RepositoryError("writing stats", err)
	}
	return nil
}
