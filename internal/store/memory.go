package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/amishk599/jobsieve/internal/model"
)

// MemoryStore keeps everything in process memory. It backs dry runs and
// tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	matches  map[string]model.MatchRecord // by ID
	keys     map[string]string            // user+identity key -> ID
	requests []model.RequestLogEntry
	values   map[string]string
	jobs     map[string]model.JobSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]model.MatchRecord),
		keys:    make(map[string]string),
		values:  make(map[string]string),
		jobs:    make(map[string]model.JobSnapshot),
	}
}

func memKey(userID, identityKey string) string { return userID + "\x00" + identityKey }

func (s *MemoryStore) FindMatch(_ context.Context, userID, identityKey string) (*model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.keys[memKey(userID, identityKey)]
	if !ok {
		return nil, nil
	}
	rec := s.matches[id]
	return &rec, nil
}

func (s *MemoryStore) InsertMatch(_ context.Context, rec model.MatchRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(rec.UserID, rec.IdentityKey)
	if _, ok := s.keys[k]; ok {
		return false, nil
	}
	s.keys[k] = rec.ID
	s.matches[rec.ID] = rec
	return true, nil
}

func (s *MemoryStore) ListMatches(_ context.Context, userID string, f model.MatchFilter) ([]model.MatchRecord, error) {
	s.mu.RLock()
	var out []model.MatchRecord
	for _, rec := range s.matches {
		if rec.UserID != userID ||
			(!f.IncludeDismissed && rec.IsDismissed) ||
			(f.OnlySaved && !rec.IsSaved) ||
			rec.Score < f.MinScore {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.MatchRecord) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return b.DiscoveredAt.Compare(a.DiscoveredAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateMatchFlags(_ context.Context, id string, flags model.MatchFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("updating match %s: %w", id, model.ErrMatchNotFound)
	}
	if flags.IsSaved != nil {
		rec.IsSaved = *flags.IsSaved
	}
	if flags.IsDismissed != nil {
		rec.IsDismissed = *flags.IsDismissed
	}
	if flags.IsApplied != nil {
		rec.IsApplied = *flags.IsApplied
	}
	s.matches[id] = rec
	return nil
}

func (s *MemoryStore) AppendRequest(_ context.Context, e model.RequestLogEntry) error {
	s.mu.Lock()
	s.requests = append(s.requests, e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) RequestsSince(_ context.Context, source model.SourceKind, since time.Time) ([]model.RequestLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RequestLogEntry
	for _, e := range s.requests {
		if e.Source == source && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b model.RequestLogEntry) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

func (s *MemoryStore) GetValue(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) PutValue(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveJobState(_ context.Context, snap model.JobSnapshot) error {
	s.mu.Lock()
	s.jobs[snap.ID] = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadJobStates(_ context.Context) ([]model.JobSnapshot, error) {
	s.mu.RLock()
	out := make([]model.JobSnapshot, 0, len(s.jobs))
	for _, snap := range s.jobs {
		out = append(out, snap)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.JobSnapshot) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkInterrupted(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, snap := range s.jobs {
		if snap.State.Terminal() {
			continue
		}
		snap.State = model.JobFailed
		snap.Error = "interrupted"
		snap.UpdatedAt = at
		s.jobs[id] = snap
		n++
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
