package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

var (
	RedisPrefix      = "pollwatch:"
	RedisKeySessions = RedisPrefix + "sessions"
)

// redisSessionKey returns the key holding the JSON record for requestID.
func redisSessionKey(requestID string) string {
	return RedisPrefix + "session:" + requestID
}

// RedisStore is a [Store] that persists records in Redis.
//
// Each record is stored as JSON under pollwatch:session:<request id>, and
// the set pollwatch:sessions indexes all request ids. Subscriptions are
// in-process only; Redis pub/sub is not used.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	hub    *hub
}

// NewRedisStore connects to the Redis instance at addr and checks that it
// answers. Records expire after ttl; zero keeps them forever.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis init error")
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		hub:    newHub(),
	}, nil
}

// Update writes rec to Redis, then notifies subscribers.
func (s *RedisStore) Update(ctx context.Context, rec SessionRecord) error {
	if s.hub.isClosed() {
		return ErrClosed
	}

	msg, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode session record")
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisSessionKey(rec.RequestID), msg, s.ttl)
		pipe.SAdd(ctx, RedisKeySessions, rec.RequestID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save session %s", rec.RequestID)
	}

	s.hub.publish(rec)
	return nil
}

// Get reads the record for requestID.
func (s *RedisStore) Get(ctx context.Context, requestID string) (SessionRecord, bool, error) {
	res, err := s.client.Get(ctx, redisSessionKey(requestID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, errors.Wrapf(err, "load session %s", requestID)
	}

	var rec SessionRecord
	if err := json.Unmarshal(res, &rec); err != nil {
		return SessionRecord{}, false, errors.Wrapf(err, "decode session %s", requestID)
	}
	return rec, true, nil
}

// GetAll reads every indexed record. Index entries whose record expired are
// removed from the index.
func (s *RedisStore) GetAll(ctx context.Context) ([]SessionRecord, error) {
	ids, err := s.client.SMembers(ctx, RedisKeySessions).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	if len(ids) == 0 {
		return []SessionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisSessionKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load sessions")
	}

	out := make([]SessionRecord, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode session %s", ids[i])
		}
		out = append(out, rec)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, RedisKeySessions, stale...).Err(); err != nil {
			return nil, errors.Wrap(err, "prune session index")
		}
	}

	sortRecords(out)
	return out, nil
}

// Subscribe creates a new in-process subscription.
func (s *RedisStore) Subscribe() <-chan SessionRecord {
	return s.hub.subscribe()
}

// Unsubscribe removes a subscription and closes its channel.
func (s *RedisStore) Unsubscribe(ch <-chan SessionRecord) {
	s.hub.unsubscribe(ch)
}

// Close closes all subscriptions and the Redis connection pool.
func (s *RedisStore) Close() error {
	if !s.hub.close() {
		return nil
	}
	return errors.Wrap(s.client.Close(), "close redis client")
}
