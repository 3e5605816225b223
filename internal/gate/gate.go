package gate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/amishk599/jobsieve/internal/model"
)

// Window is the trailing period the hourly quota is counted over.
const Window = time.Hour

// Decision is the outcome of an access check.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	Reason        string    `json:"reason,omitempty"`
	NextAllowedAt time.Time `json:"next_allowed_at,omitzero"`
}

// Evaluate decides whether source may be called at now. entries is the
// source's recent request log; entries outside the window and blocked
// attempts do not count toward the quota.
func Evaluate(source model.SourceKind, prefs model.AccessPreferences, entries []model.RequestLogEntry, now time.Time) Decision {
	if !prefs.Enabled {
		return Decision{Reason: "source is disabled"}
	}
	if !prefs.RequireSafetyMeasures {
		return Decision{Reason: "safety measures are turned off"}
	}

	cutoff := now.Add(-Window)
	var counted []time.Time
	for _, e := range entries {
		if e.Source != source || e.Status == model.RequestBlocked || e.Timestamp.Before(cutoff) {
			continue
		}
		counted = append(counted, e.Timestamp)
	}

	limit := source.HourlyCap()
	if len(counted) < limit {
		return Decision{Allowed: true}
	}
	// The window frees a slot once enough of the oldest entries age out.
	// With exactly limit entries that is the oldest one.
	slices.SortFunc(counted, func(a, b time.Time) int { return a.Compare(b) })
	return Decision{
		Reason:        fmt.Sprintf("hourly quota of %d requests reached", limit),
		NextAllowedAt: counted[len(counted)-limit].Add(Window),
	}
}

// PreferenceSource supplies the stored access preferences of a source.
type PreferenceSource interface {
	AccessPreferences(ctx context.Context, source model.SourceKind) (model.AccessPreferences, error)
}

// Gate guards external calls per source: the preference and quota checks
// must pass, at most MaxConcurrent calls run at once, and successive calls
// start at least MinDelayMs apart.
type Gate struct {
	prefs  PreferenceSource
	log    model.RequestLog
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	sources map[model.SourceKind]*sourceLimiter
}

// semUnits is divisible by every allowed MaxConcurrent, so a call acquiring
// semUnits/MaxConcurrent units limits concurrency exactly even if the
// preference changes between calls.
const semUnits = 6

type sourceLimiter struct {
	sem *semaphore.Weighted

	mu   sync.Mutex
	next time.Time // earliest start of the next call
}

// New returns a gate reading preferences from prefs and history from log.
func New(prefs PreferenceSource, log model.RequestLog, logger *slog.Logger) *Gate {
	return &Gate{
		prefs:   prefs,
		log:     log,
		logger:  logger,
		now:     time.Now,
		sources: make(map[model.SourceKind]*sourceLimiter),
	}
}

// Check evaluates the stored preferences and trailing-hour log of source.
func (g *Gate) Check(ctx context.Context, source model.SourceKind) (Decision, model.AccessPreferences, error) {
	prefs, err := g.prefs.AccessPreferences(ctx, source)
	if err != nil {
		return Decision{}, prefs, fmt.Errorf("loading access preferences for %s: %w", source, err)
	}
	now := g.now()
	entries, err := g.log.RequestsSince(ctx, source, now.Add(-Window))
	if err != nil {
		return Decision{}, prefs, model.RepositoryError("reading request log", err)
	}
	return Evaluate(source, prefs, entries, now), prefs, nil
}

// Permitted applies the preference check alone. Ingesting a notification
// makes no external call, so the quota does not apply to it.
func (g *Gate) Permitted(ctx context.Context, source model.SourceKind) (Decision, error) {
	prefs, err := g.prefs.AccessPreferences(ctx, source)
	if err != nil {
		return Decision{}, fmt.Errorf("loading access preferences for %s: %w", source, err)
	}
	return Evaluate(source, prefs, nil, g.now()), nil
}

// Permit is held for the duration of one external call.
type Permit struct {
	Prefs   model.AccessPreferences
	release func()
	once    sync.Once
}

// Release returns the concurrency slot. It is safe to call more than once.
func (p *Permit) Release() {
	p.once.Do(p.release)
}

// Acquire blocks until source may be called. A denial is logged as a blocked
// request and returned as a *model.GateDeniedError.
func (g *Gate) Acquire(ctx context.Context, source model.SourceKind) (*Permit, error) {
	d, prefs, err := g.Check(ctx, source)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		if err := g.Record(ctx, source, model.RequestBlocked); err != nil {
			g.logger.Warn("recording blocked request", "source", source, "error", err)
		}
		g.logger.Info("access denied", "source", source, "reason", d.Reason, "next_allowed_at", d.NextAllowedAt)
		return nil, &model.GateDeniedError{Source: source, Reason: d.Reason, NextAllowedAt: d.NextAllowedAt}
	}

	l := g.limiter(source)
	units := int64(semUnits / prefs.MaxConcurrent)
	if err := l.sem.Acquire(ctx, units); err != nil {
		return nil, fmt.Errorf("waiting for %s concurrency slot: %w", source, err)
	}

	l.mu.Lock()
	now := g.now()
	start := now
	if l.next.After(start) {
		start = l.next
	}
	l.next = start.Add(prefs.MinDelay())
	l.mu.Unlock()

	if wait := start.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.sem.Release(units)
			return nil, fmt.Errorf("min delay wait for %s: %w", source, ctx.Err())
		case <-timer.C:
		}
	}

	return &Permit{Prefs: prefs, release: func() { l.sem.Release(units) }}, nil
}

func (g *Gate) limiter(source model.SourceKind) *sourceLimiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.sources[source]
	if !ok {
		l = &sourceLimiter{sem: semaphore.NewWeighted(semUnits)}
		g.sources[source] = l
	}
	return l
}

// Record appends the outcome of a call to the request log.
func (g *Gate) Record(ctx context.Context, source model.SourceKind, status model.RequestStatus) error {
	err := g.log.AppendRequest(ctx, model.RequestLogEntry{Source: source, Status: status, Timestamp: g.now().UTC()})
	if err != nil {
		return model.RepositoryError("appending request log", err)
	}
	return nil
}
