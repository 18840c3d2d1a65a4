package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

// Key names match the layout the tracker has always used so an existing
// deployment's data stays readable.
const (
	RedisLatestKey  = "latest_entry"
	RedisHistoryKey = "history"
	RedisSeenKey    = "seen_fingerprints"
)

// RedisStore keeps latest as a string key, history as a capped list
// (newest at the head) and fingerprints in a set.
type RedisStore struct {
	client     redis.UniversalClient
	maxHistory int
}

// OpenRedis parses a redis:// or rediss:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 10 * time.Second
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client. If maxHistory is <= 0 the default
// cap is used.
func NewRedisStore(client redis.UniversalClient, maxHistory int) *RedisStore {
	if maxHistory <= 0 {
		maxHistory = tracking.DefaultHistoryCap
	}
	return &RedisStore{client: client, maxHistory: maxHistory}
}

func (s *RedisStore) SeedIfEmpty(ctx context.Context, bootstrap tracking.Reading) (bool, error) {
	n, err := s.client.Exists(ctx, RedisLatestKey, RedisHistoryKey).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	if n > 0 {
		return false, nil
	}

	val, err := json.Marshal(bootstrap)
	if err != nil {
		return false, err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RedisLatestKey, val, 0)
		pipe.LPush(ctx, RedisHistoryKey, val)
		return nil
	})
	if err != nil {
		return false, unavailable("seed", err)
	}
	return true, nil
}

func (s *RedisStore) Append(ctx context.Context, r tracking.Reading) error {
	val, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, RedisLatestKey, val, 0)
		pipe.LPush(ctx, RedisHistoryKey, val)
		pipe.LTrim(ctx, RedisHistoryKey, 0, int64(s.maxHistory-1))
		return nil
	})
	if err != nil {
		return unavailable("append", err)
	}
	return nil
}

func (s *RedisStore) Latest(ctx context.Context) (tracking.Reading, bool, error) {
	val, err := s.client.Get(ctx, RedisLatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return tracking.Reading{}, false, nil
	}
	if err != nil {
		return tracking.Reading{}, false, unavailable("get latest", err)
	}

	var r tracking.Reading
	if err := json.Unmarshal(val, &r); err != nil {
		return tracking.Reading{}, false, fmt.Errorf("%w: latest: %v", ErrCorruptValue, err)
	}
	return r, true, nil
}

func (s *RedisStore) History(ctx context.Context, offset, limit int) ([]tracking.Reading, error) {
	if limit <= 0 {
		return []tracking.Reading{}, nil
	}
	// LRANGE counts negative indexes from the tail.
	offset = max(offset, 0)
	vals, err := s.client.LRange(ctx, RedisHistoryKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, unavailable("lrange history", err)
	}

	out := make([]tracking.Reading, 0, len(vals))
	for _, v := range vals {
		var r tracking.Reading
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("%w: history entry: %v", ErrCorruptValue, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) Seen(ctx context.Context, fp tracking.Fingerprint) (bool, error) {
	ok, err := s.client.SIsMember(ctx, RedisSeenKey, string(fp)).Result()
	if err != nil {
		return false, unavailable("sismember", err)
	}
	return ok, nil
}

func (s *RedisStore) Record(ctx context.Context, fp tracking.Fingerprint) error {
	if err := s.client.SAdd(ctx, RedisSeenKey, string(fp)).Err(); err != nil {
		return unavailable("sadd", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
