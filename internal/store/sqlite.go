package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/amishk599/jobsieve/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	identity_key  TEXT NOT NULL,
	title         TEXT NOT NULL,
	company       TEXT NOT NULL,
	location      TEXT NOT NULL,
	salary_range  TEXT NOT NULL DEFAULT '',
	requirements  TEXT NOT NULL DEFAULT '[]',
	posted_at     INTEGER NOT NULL,
	source        TEXT NOT NULL,
	score         INTEGER NOT NULL,
	is_saved      INTEGER NOT NULL DEFAULT 0,
	is_dismissed  INTEGER NOT NULL DEFAULT 0,
	is_applied    INTEGER NOT NULL DEFAULT 0,
	discovered_at INTEGER NOT NULL,
	UNIQUE (user_id, identity_key)
);
CREATE TABLE IF NOT EXISTS request_log (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	ts     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS request_log_source_ts ON request_log (source, ts);
CREATE TABLE IF NOT EXISTS settings (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS job_states (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	kind            TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	state           TEXT NOT NULL,
	completed_steps INTEGER NOT NULL,
	total_steps     INTEGER NOT NULL,
	results_found   INTEGER NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	updated_at      INTEGER NOT NULL
);`

var sqlb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLiteStore is the default backend. It persists matches, the request log,
// settings and job snapshots in one SQLite database. Times are stored as
// unix milliseconds.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: SQLite serialises writers anyway and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

type matchRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	IdentityKey  string `db:"identity_key"`
	Title        string `db:"title"`
	Company      string `db:"company"`
	Location     string `db:"location"`
	SalaryRange  string `db:"salary_range"`
	Requirements string `db:"requirements"`
	PostedAt     int64  `db:"posted_at"`
	Source       string `db:"source"`
	Score        int    `db:"score"`
	IsSaved      bool   `db:"is_saved"`
	IsDismissed  bool   `db:"is_dismissed"`
	IsApplied    bool   `db:"is_applied"`
	DiscoveredAt int64  `db:"discovered_at"`
}

var matchColumns = []string{
	"id", "user_id", "identity_key", "title", "company", "location", "salary_range", "requirements",
	"posted_at", "source", "score", "is_saved", "is_dismissed", "is_applied", "discovered_at",
}

func (r matchRow) record() model.MatchRecord {
	var reqs []string
	if err := json.Unmarshal([]byte(r.Requirements), &reqs); err != nil {
		reqs = nil
	}
	return model.MatchRecord{
		ID:           r.ID,
		UserID:       r.UserID,
		IdentityKey:  r.IdentityKey,
		Title:        r.Title,
		Company:      r.Company,
		Location:     r.Location,
		SalaryRange:  r.SalaryRange,
		Requirements: reqs,
		PostedAt:     fromMillis(r.PostedAt),
		Source:       model.SourceKind(r.Source),
		Score:        r.Score,
		IsSaved:      r.IsSaved,
		IsDismissed:  r.IsDismissed,
		IsApplied:    r.IsApplied,
		DiscoveredAt: fromMillis(r.DiscoveredAt),
	}
}

// FindMatch returns the match with the given identity key, or nil.
func (s *SQLiteStore) FindMatch(ctx context.Context, userID, identityKey string) (*model.MatchRecord, error) {
	query, args, err := sqlb.Select(matchColumns...).From("matches").
		Where(sq.Eq{"user_id": userID, "identity_key": identityKey}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building find query: %w", err)
	}
	var row matchRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding match %s: %w", identityKey, err)
	}
	rec := row.record()
	return &rec, nil
}

// InsertMatch stores rec. It returns false without error if a match with the
// same user and identity key already exists.
func (s *SQLiteStore) InsertMatch(ctx context.Context, rec model.MatchRecord) (bool, error) {
	reqs, err := json.Marshal(rec.Requirements)
	if err != nil {
		return false, fmt.Errorf("encoding requirements: %w", err)
	}
	query, args, err := sqlb.Insert("matches").Options("OR IGNORE").Columns(matchColumns...).Values(
		rec.ID, rec.UserID, rec.IdentityKey, rec.Title, rec.Company, rec.Location, rec.SalaryRange, string(reqs),
		toMillis(rec.PostedAt), string(rec.Source), rec.Score, rec.IsSaved, rec.IsDismissed, rec.IsApplied,
		toMillis(rec.DiscoveredAt),
	).ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting match %s: %w", rec.IdentityKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting match %s: %w", rec.IdentityKey, err)
	}
	return n == 1, nil
}

// ListMatches returns a user's matches ordered by score, then discovery time.
func (s *SQLiteStore) ListMatches(ctx context.Context, userID string, f model.MatchFilter) ([]model.MatchRecord, error) {
	q := sqlb.Select(matchColumns...).From("matches").Where(sq.Eq{"user_id": userID})
	if !f.IncludeDismissed {
		q = q.Where(sq.Eq{"is_dismissed": false})
	}
	if f.OnlySaved {
		q = q.Where(sq.Eq{"is_saved": true})
	}
	if f.MinScore > 0 {
		q = q.Where(sq.GtOrEq{"score": f.MinScore})
	}
	q = q.OrderBy("score DESC", "discovered_at DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	var rows []matchRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	out := make([]model.MatchRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// UpdateMatchFlags sets the non-nil flags on match id.
func (s *SQLiteStore) UpdateMatchFlags(ctx context.Context, id string, flags model.MatchFlags) error {
	set := flagColumns(flags)
	if len(set) == 0 {
		return nil
	}
	query, args, err := sqlb.Update("matches").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating match %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating match %s: %w", id, model.ErrMatchNotFound)
	}
	return nil
}

func flagColumns(flags model.MatchFlags) map[string]any {
	set := make(map[string]any, 3)
	if flags.IsSaved != nil {
		set["is_saved"] = *flags.IsSaved
	}
	if flags.IsDismissed != nil {
		set["is_dismissed"] = *flags.IsDismissed
	}
	if flags.IsApplied != nil {
		set["is_applied"] = *flags.IsApplied
	}
	return set
}

// AppendRequest records one external call attempt.
func (s *SQLiteStore) AppendRequest(ctx context.Context, e model.RequestLogEntry) error {
	query, args, err := sqlb.Insert("request_log").Columns("source", "status", "ts").
		Values(string(e.Source), string(e.Status), toMillis(e.Timestamp)).ToSql()
	if err != nil {
		return fmt.Errorf("building request log insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("appending request for %s: %w", e.Source, err)
	}
	return nil
}

type requestRow struct {
	Source string `db:"source"`
	Status string `db:"status"`
	TS     int64  `db:"ts"`
}

// RequestsSince returns the source's request log entries at or after since,
// oldest first.
func (s *SQLiteStore) RequestsSince(ctx context.Context, source model.SourceKind, since time.Time) ([]model.RequestLogEntry, error) {
	query, args, err := sqlb.Select("source", "status", "ts").From("request_log").
		Where(sq.Eq{"source": string(source)}).
		Where(sq.GtOrEq{"ts": toMillis(since)}).
		OrderBy("ts ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building request log query: %w", err)
	}
	var rows []requestRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("reading request log for %s: %w", source, err)
	}
	out := make([]model.RequestLogEntry, len(rows))
	for i, r := range rows {
		out[i] = model.RequestLogEntry{
			Source:    model.SourceKind(r.Source),
			Status:    model.RequestStatus(r.Status),
			Timestamp: fromMillis(r.TS),
		}
	}
	return out, nil
}

// PruneRequests deletes request log entries older than the given duration.
func (s *SQLiteStore) PruneRequests(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	query, args, err := sqlb.Delete("request_log").Where(sq.Lt{"ts": toMillis(cutoff)}).ToSql()
	if err != nil {
		return fmt.Errorf("building prune query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("pruning request log older than %v: %w", olderThan, err)
	}
	return nil
}

// GetValue reads a setting. ok is false if the key was never written.
func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	query, args, err := sqlb.Select("value").From("settings").Where(sq.Eq{"name": key}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("building settings query: %w", err)
	}
	var value string
	err = s.db.GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutValue writes a setting, replacing any previous value.
func (s *SQLiteStore) PutValue(ctx context.Context, key, value string) error {
	query, args, err := sqlb.Insert("settings").Columns("name", "value").Values(key, value).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = excluded.value").ToSql()
	if err != nil {
		return fmt.Errorf("building settings upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

type jobStateRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	Kind           string `db:"kind"`
	UserID         string `db:"user_id"`
	State          string `db:"state"`
	CompletedSteps int    `db:"completed_steps"`
	TotalSteps     int    `db:"total_steps"`
	ResultsFound   int    `db:"results_found"`
	Error          string `db:"error"`
	UpdatedAt      int64  `db:"updated_at"`
}

// SaveJobState upserts a job snapshot.
func (s *SQLiteStore) SaveJobState(ctx context.Context, snap model.JobSnapshot) error {
	query, args, err := sqlb.Insert("job_states").
		Columns("id", "name", "kind", "user_id", "state", "completed_steps", "total_steps", "results_found", "error", "updated_at").
		Values(snap.ID, snap.Name, string(snap.Kind), snap.UserID, string(snap.State), snap.CompletedSteps,
			snap.TotalSteps, snap.ResultsFound, snap.Error, toMillis(snap.UpdatedAt)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET state = excluded.state, completed_steps = excluded.completed_steps,
			total_steps = excluded.total_steps, results_found = excluded.results_found, error = excluded.error,
			updated_at = excluded.updated_at`).ToSql()
	if err != nil {
		return fmt.Errorf("building job state upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving job state %s: %w", snap.ID, err)
	}
	return nil
}

// LoadJobStates returns every stored snapshot, most recently updated first.
func (s *SQLiteStore) LoadJobStates(ctx context.Context) ([]model.JobSnapshot, error) {
	var rows []jobStateRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, name, kind, user_id, state, completed_steps, total_steps,
		results_found, error, updated_at FROM job_states ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading job states: %w", err)
	}
	out := make([]model.JobSnapshot, len(rows))
	for i, r := range rows {
		out[i] = model.JobSnapshot{
			ID:             r.ID,
			Name:           r.Name,
			Kind:           model.JobKind(r.Kind),
			UserID:         r.UserID,
			State:          model.JobState(r.State),
			CompletedSteps: r.CompletedSteps,
			TotalSteps:     r.TotalSteps,
			ResultsFound:   r.ResultsFound,
			Error:          r.Error,
			UpdatedAt:      fromMillis(r.UpdatedAt),
		}
	}
	return out, nil
}

// MarkInterrupted fails every snapshot left running or paused by a previous
// process and returns how many were changed.
func (s *SQLiteStore) MarkInterrupted(ctx context.Context, at time.Time) (int, error) {
	query, args, err := sqlb.Update("job_states").
		Set("state", string(model.JobFailed)).
		Set("error", "interrupted").
		Set("updated_at", toMillis(at)).
		Where(sq.Eq{"state": []string{string(model.JobRunning), string(model.JobPaused), string(model.JobPending)}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building interrupt update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("marking interrupted jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("marking interrupted jobs: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
