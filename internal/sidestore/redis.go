// Package sidestore keeps the small keyed state that lives outside the
// entity graph in Redis: the merge suggestion queue, its surface log, the
// conflict review queue, the sweep marker and persona statuses.
package sidestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/jsonx"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultPrefix = "selfgraph:"

	// surface log entries older than this are trimmed on write
	surfaceRetention = 48 * time.Hour
)

type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func New(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(parts string) string {
	return s.prefix + parts
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Enqueue(ctx context.Context, sg domain.MergeSuggestion) (bool, error) {
	data, err := jsonx.Marshal(sg)
	if err != nil {
		return false, fmt.Errorf("marshal suggestion: %w", err)
	}
	return s.rdb.HSetNX(ctx, s.key("suggestions"), sg.PairKey(), data).Result()
}

func (s *RedisStore) Get(ctx context.Context, a, b uuid.UUID) (*domain.MergeSuggestion, error) {
	data, err := s.rdb.HGet(ctx, s.key("suggestions"), domain.PairKey(a, b)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sg domain.MergeSuggestion
	if err := jsonx.Unmarshal(data, &sg); err != nil {
		return nil, fmt.Errorf("unmarshal suggestion: %w", err)
	}
	return &sg, nil
}

func (s *RedisStore) ListPending(ctx context.Context) ([]domain.MergeSuggestion, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key("suggestions")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.MergeSuggestion, 0, len(raw))
	for pair, data := range raw {
		var sg domain.MergeSuggestion
		if err := jsonx.Unmarshal([]byte(data), &sg); err != nil {
			s.logger.Warn("dropping unreadable suggestion", zap.String("pair", pair), zap.Error(err))
			continue
		}
		out = append(out, sg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SuggestedAt.Equal(out[j].SuggestedAt) {
			return out[i].SuggestedAt.Before(out[j].SuggestedAt)
		}
		return out[i].PairKey() < out[j].PairKey()
	})
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, sg domain.MergeSuggestion) error {
	exists, err := s.rdb.HExists(ctx, s.key("suggestions"), sg.PairKey()).Result()
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	data, err := jsonx.Marshal(sg)
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}
	return s.rdb.HSet(ctx, s.key("suggestions"), sg.PairKey(), data).Err()
}

func (s *RedisStore) Remove(ctx context.Context, a, b uuid.UUID) error {
	return s.rdb.HDel(ctx, s.key("suggestions"), domain.PairKey(a, b)).Err()
}

// reserveSurface trims expired entries, counts the window and logs the new
// surfacing only while the count is under the limit.
//
// KEYS[1] surface log; ARGV: window start ms, at ms, member, limit, trim bound ms
var reserveSurface = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[5])
local n = redis.call('ZCOUNT', KEYS[1], ARGV[1], '+inf')
if n >= tonumber(ARGV[4]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
return 1
`)

// ReserveSurface logs one surfacing in a sorted set scored by time. The
// count and the write run as one script, so concurrent callers cannot both
// take the last slot.
func (s *RedisStore) ReserveSurface(ctx context.Context, pairKey string, at, since time.Time, limit int) (bool, error) {
	member := pairKey + "@" + strconv.FormatInt(at.UnixNano(), 10)
	ok, err := reserveSurface.Run(ctx, s.rdb, []string{s.key("surfaced")},
		since.UnixMilli(),
		at.UnixMilli(),
		member,
		limit,
		at.Add(-surfaceRetention).UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve surface: %w", err)
	}
	return ok == 1, nil
}

func (s *RedisStore) CountSurfacedSince(ctx context.Context, since time.Time) (int, error) {
	n, err := s.rdb.ZCount(ctx, s.key("surfaced"), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	return int(n), err
}

func (s *RedisStore) PushConflict(ctx context.Context, entityID uuid.UUID) error {
	return s.rdb.SAdd(ctx, s.key("conflicts"), entityID.String()).Err()
}

func (s *RedisStore) ListConflicts(ctx context.Context) ([]uuid.UUID, error) {
	members, err := s.rdb.SMembers(ctx, s.key("conflicts")).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			s.logger.Warn("dropping malformed conflict id", zap.String("value", m))
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *RedisStore) RemoveConflict(ctx context.Context, entityID uuid.UUID) error {
	return s.rdb.SRem(ctx, s.key("conflicts"), entityID.String()).Err()
}

func (s *RedisStore) LastSweep(ctx context.Context) (time.Time, error) {
	v, err := s.rdb.Get(ctx, s.key("sweep:last")).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}

func (s *RedisStore) MarkSweep(ctx context.Context, at time.Time) error {
	return s.rdb.Set(ctx, s.key("sweep:last"), at.UTC().Format(time.RFC3339Nano), 0).Err()
}

func (s *RedisStore) GetStatus(ctx context.Context, personaID string) (domain.PersonaStatus, error) {
	v, err := s.rdb.HGet(ctx, s.key("personas"), personaID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PersonaDraft, nil
	}
	if err != nil {
		return "", err
	}
	return domain.PersonaStatus(v), nil
}

func (s *RedisStore) SetStatus(ctx context.Context, personaID string, status domain.PersonaStatus) error {
	return s.rdb.HSet(ctx, s.key("personas"), personaID, string(status)).Err()
}

var _ domain.SideStore = (*RedisStore)(nil)
