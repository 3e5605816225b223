package model

import (
	"context"
	"time"
)

// MatchStore persists match records. InsertMatch must treat (UserID,
// IdentityKey) as unique and report false instead of failing on a conflict.
type MatchStore interface {
	FindMatch(ctx context.Context, userID, identityKey string) (*MatchRecord, error)
	InsertMatch(ctx context.Context, rec MatchRecord) (bool, error)
	ListMatches(ctx context.Context, userID string, f MatchFilter) ([]MatchRecord, error)
	UpdateMatchFlags(ctx context.Context, id string, flags MatchFlags) error
}

// RequestLog is the append-only record of external call attempts.
type RequestLog interface {
	AppendRequest(ctx context.Context, e RequestLogEntry) error
	RequestsSince(ctx context.Context, source SourceKind, since time.Time) ([]RequestLogEntry, error)
}

// KVStore holds scalar settings. The bool result of GetValue is false when
// the key has never been written.
type KVStore interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	PutValue(ctx context.Context, key, value string) error
}

// JobStateStore mirrors job snapshots for crash recovery.
type JobStateStore interface {
	SaveJobState(ctx context.Context, snap JobSnapshot) error
	LoadJobStates(ctx context.Context) ([]JobSnapshot, error)
}

// Notifier announces newly added matches.
type Notifier interface {
	Notify(records []MatchRecord) error
}
