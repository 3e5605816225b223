package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobsieve/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	identity_key  TEXT NOT NULL,
	title         TEXT NOT NULL,
	company       TEXT NOT NULL,
	location      TEXT NOT NULL,
	salary_range  TEXT NOT NULL DEFAULT '',
	requirements  TEXT[] NOT NULL DEFAULT '{}',
	posted_at     TIMESTAMPTZ,
	source        TEXT NOT NULL,
	score         INTEGER NOT NULL,
	is_saved      BOOLEAN NOT NULL DEFAULT FALSE,
	is_dismissed  BOOLEAN NOT NULL DEFAULT FALSE,
	is_applied    BOOLEAN NOT NULL DEFAULT FALSE,
	discovered_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, identity_key)
);
CREATE TABLE IF NOT EXISTS request_log (
	id     BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	ts     TIMESTAMPTZ NOT NULL
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
	updated_at      TIMESTAMPTZ NOT NULL
);`

var pgb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implements the same storage interfaces as SQLiteStore on
// a shared Postgres database, for deployments running several processes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, verifies the connection and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func scanMatch(row pgx.Row) (model.MatchRecord, error) {
	var (
		rec      model.MatchRecord
		source   string
		postedAt *time.Time
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.IdentityKey, &rec.Title, &rec.Company, &rec.Location,
		&rec.SalaryRange, &rec.Requirements, &postedAt, &source, &rec.Score, &rec.IsSaved, &rec.IsDismissed,
		&rec.IsApplied, &rec.DiscoveredAt)
	if err != nil {
		return rec, err
	}
	rec.Source = model.SourceKind(source)
	if postedAt != nil {
		rec.PostedAt = postedAt.UTC()
	}
	rec.DiscoveredAt = rec.DiscoveredAt.UTC()
	return rec, nil
}

func (s *PostgresStore) FindMatch(ctx context.Context, userID, identityKey string) (*model.MatchRecord, error) {
	query, args, err := pgb.Select(matchColumns...).From("matches").
		Where(sq.Eq{"user_id": userID, "identity_key": identityKey}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building find query: %w", err)
	}
	rec, err := scanMatch(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding match %s: %w", identityKey, err)
	}
	return &rec, nil
}

// InsertMatch relies on the (user_id, identity_key) constraint: a conflicting
// insert affects no rows and reports false.
func (s *PostgresStore) InsertMatch(ctx context.Context, rec model.MatchRecord) (bool, error) {
	var postedAt *time.Time
	if !rec.PostedAt.IsZero() {
		postedAt = &rec.PostedAt
	}
	reqs := rec.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	query, args, err := pgb.Insert("matches").Columns(matchColumns...).Values(
		rec.ID, rec.UserID, rec.IdentityKey, rec.Title, rec.Company, rec.Location, rec.SalaryRange, reqs,
		postedAt, string(rec.Source), rec.Score, rec.IsSaved, rec.IsDismissed, rec.IsApplied, rec.DiscoveredAt,
	).Suffix("ON CONFLICT (user_id, identity_key) DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting match %s: %w", rec.IdentityKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context, userID string, f model.MatchFilter) ([]model.MatchRecord, error) {
	q := pgb.Select(matchColumns...).From("matches").Where(sq.Eq{"user_id": userID})
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateMatchFlags(ctx context.Context, id string, flags model.MatchFlags) error {
	set := flagColumns(flags)
	if len(set) == 0 {
		return nil
	}
	query, args, err := pgb.Update("matches").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating match %s: %w", id, model.ErrMatchNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendRequest(ctx context.Context, e model.RequestLogEntry) error {
	_, err := s.pool.Exec(ctx, "INSERT INTO request_log (source, status, ts) VALUES ($1, $2, $3)",
		string(e.Source), string(e.Status), e.Timestamp)
	if err != nil {
		return fmt.Errorf("appending request for %s: %w", e.Source, err)
	}
	return nil
}

func (s *PostgresStore) RequestsSince(ctx context.Context, source model.SourceKind, since time.Time) ([]model.RequestLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT status, ts FROM request_log WHERE source = $1 AND ts >= $2 ORDER BY ts ASC",
		string(source), since)
	if err != nil {
		return nil, fmt.Errorf("reading request log for %s: %w", source, err)
	}
	defer rows.Close()

	var out []model.RequestLogEntry
	for rows.Next() {
		var (
			status string
			ts     time.Time
		)
		if err := rows.Scan(&status, &ts); err != nil {
			return nil, fmt.Errorf("scanning request log: %w", err)
		}
		out = append(out, model.RequestLogEntry{Source: source, Status: model.RequestStatus(status), Timestamp: ts.UTC()})
	}
	return out, rows.Err()
}

func (s *PostgresStore) PruneRequests(ctx context.Context, olderThan time.Duration) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM request_log WHERE ts < $1", time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("pruning request log older than %v: %w", olderThan, err)
	}
	return nil
}

func (s *PostgresStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM settings WHERE name = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) PutValue(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO settings (name, value) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) SaveJobState(ctx context.Context, snap model.JobSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_states (id, name, kind, user_id, state, completed_steps, total_steps, results_found, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET state = excluded.state, completed_steps = excluded.completed_steps,
			total_steps = excluded.total_steps, results_found = excluded.results_found, error = excluded.error,
			updated_at = excluded.updated_at`,
		snap.ID, snap.Name, string(snap.Kind), snap.UserID, string(snap.State), snap.CompletedSteps,
		snap.TotalSteps, snap.ResultsFound, snap.Error, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving job state %s: %w", snap.ID, err)
	}
	return nil
}

func (s *PostgresStore) LoadJobStates(ctx context.Context) ([]model.JobSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, kind, user_id, state, completed_steps, total_steps,
		results_found, error, updated_at FROM job_states ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading job states: %w", err)
	}
	defer rows.Close()

	var out []model.JobSnapshot
	for rows.Next() {
		var (
			snap        model.JobSnapshot
			kind, state string
		)
		if err := rows.Scan(&snap.ID, &snap.Name, &kind, &snap.UserID, &state, &snap.CompletedSteps,
			&snap.TotalSteps, &snap.ResultsFound, &snap.Error, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job state: %w", err)
		}
		snap.Kind, snap.State = model.JobKind(kind), model.JobState(state)
		snap.UpdatedAt = snap.UpdatedAt.UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkInterrupted(ctx context.Context, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_states SET state = $1, error = 'interrupted', updated_at = $2
		 WHERE state IN ('pending', 'running', 'paused')`,
		string(model.JobFailed), at)
	if err != nil {
		return 0, fmt.Errorf("marking interrupted jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
