package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobsieve/internal/model"
)

// InsertResult reports what TryInsert did with a candidate.
type InsertResult struct {
	Inserted       bool
	BelowThreshold bool
	Duplicate      bool
	Record         *model.MatchRecord // set when Inserted
}

// Repository deduplicates candidates and persists the new ones as match
// records. Check and insert are serialised per identity key; the store's
// unique constraint covers writers in other processes.
type Repository struct {
	store model.MatchStore
	locks keyedMutex
	now   func() time.Time
	newID func() string
}

// NewRepository returns a repository backed by store.
func NewRepository(store model.MatchStore) *Repository {
	return &Repository{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// TryInsert stores c for userID unless it scores below threshold or a match
// with the same identity key already exists. Store failures are returned
// wrapped in model.ErrRepository.
func (r *Repository) TryInsert(ctx context.Context, userID string, c model.Candidate, threshold int) (InsertResult, error) {
	if c.RawScore < threshold {
		return InsertResult{BelowThreshold: true}, nil
	}

	key := model.IdentityKey(c.Title, c.Company)
	unlock := r.locks.lock(userID + "\x00" + key)
	defer unlock()

	existing, err := r.store.FindMatch(ctx, userID, key)
	if err != nil {
		return InsertResult{}, model.RepositoryError("finding match", err)
	}
	if existing != nil {
		return InsertResult{Duplicate: true}, nil
	}

	rec := model.MatchRecord{
		ID:           r.newID(),
		UserID:       userID,
		IdentityKey:  key,
		Title:        c.Title,
		Company:      c.Company,
		Location:     c.Location,
		SalaryRange:  c.SalaryRange,
		Requirements: c.Requirements,
		PostedAt:     c.PostedAt,
		Source:       c.Source,
		Score:        c.RawScore,
		DiscoveredAt: r.now().UTC(),
	}
	inserted, err := r.store.InsertMatch(ctx, rec)
	if err != nil {
		return InsertResult{}, model.RepositoryError("inserting match", err)
	}
	if !inserted {
		return InsertResult{Duplicate: true}, nil
	}
	return InsertResult{Inserted: true, Record: &rec}, nil
}

// SetFlags updates the user-controlled flags of a match. The identity key
// is never changed.
func (r *Repository) SetFlags(ctx context.Context, id string, flags model.MatchFlags) error {
	if flags.IsSaved == nil && flags.IsDismissed == nil && flags.IsApplied == nil {
		return errors.New("no flags to update")
	}
	if err := r.store.UpdateMatchFlags(ctx, id, flags); err != nil {
		if errors.Is(err, model.ErrMatchNotFound) {
			return err
		}
		return model.RepositoryError("updating match flags", err)
	}
	return nil
}

// List returns a user's matches, best score first.
func (r *Repository) List(ctx context.Context, userID string, f model.MatchFilter) ([]model.MatchRecord, error) {
	recs, err := r.store.ListMatches(ctx, userID, f)
	if err != nil {
		return nil, model.RepositoryError("listing matches", err)
	}
	return recs, nil
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
