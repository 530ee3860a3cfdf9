package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotTTL = 24 * time.Hour

// RedisStore keeps JSON snapshots of sessions under arena:session:<id>
// with an index set for LoadAll. Snapshots expire on their own so a dead
// server never leaks keys.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wires an existing client, used by tests.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keySession(sess.ID), raw, snapshotTTL)
	pipe.SAdd(ctx, keyIndex(), sess.ID)
	pipe.Expire(ctx, keyIndex(), snapshotTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keySession(id))
	pipe.SRem(ctx, keyIndex(), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) LoadAll(ctx context.Context) ([]*Session, error) {
	ids, err := s.rdb.SMembers(ctx, keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []*Session
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, keySession(id)).Bytes()
		if err == redis.Nil {
			// expired snapshot, drop the stale index entry
			_ = s.rdb.SRem(ctx, keyIndex(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, nil
}

func keySession(id string) string { return "arena:session:" + strings.TrimSpace(id) }
func keyIndex() string            { return "arena:sessions" }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
