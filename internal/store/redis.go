package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobsieve/internal/model"
)

// requestRetention bounds how long entries stay in a source's sorted set.
// The gate only ever looks one hour back.
const requestRetention = 2 * time.Hour

// RedisRequestLog keeps the request log in one sorted set per source, scored
// by timestamp, so several processes share the same quota window.
type RedisRequestLog struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisRequestLog connects to redisURL and verifies the connection.
func NewRedisRequestLog(ctx context.Context, redisURL, prefix string) (*RedisRequestLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if prefix == "" {
		prefix = "jobsieve"
	}
	return &RedisRequestLog{rdb: rdb, prefix: prefix}, nil
}

func (l *RedisRequestLog) key(source model.SourceKind) string {
	return l.prefix + ":requests:" + string(source)
}

// AppendRequest adds e to its source's set and drops entries past retention.
func (l *RedisRequestLog) AppendRequest(ctx context.Context, e model.RequestLogEntry) error {
	ms := e.Timestamp.UnixMilli()
	member := fmt.Sprintf("%d|%s|%s", ms, e.Status, uuid.NewString())
	key := l.key(e.Source)

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ms), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(ms-requestRetention.Milliseconds(), 10))
	pipe.Expire(ctx, key, requestRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending request for %s: %w", e.Source, err)
	}
	return nil
}

// RequestsSince returns entries at or after since, oldest first.
func (l *RedisRequestLog) RequestsSince(ctx context.Context, source model.SourceKind, since time.Time) ([]model.RequestLogEntry, error) {
	members, err := l.rdb.ZRangeByScore(ctx, l.key(source), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading request log for %s: %w", source, err)
	}

	out := make([]model.RequestLogEntry, 0, len(members))
	for _, m := range members {
		parts := strings.SplitN(m, "|", 3)
		if len(parts) != 3 {
			continue
		}
		ms, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.RequestLogEntry{
			Source:    source,
			Status:    model.RequestStatus(parts[1]),
			Timestamp: time.UnixMilli(ms).UTC(),
		})
	}
	return out, nil
}

func (l *RedisRequestLog) Close() error {
	return l.rdb.Close()
}
