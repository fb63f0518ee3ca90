package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed login state store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "oauth:state:",
		ttl:    TTL,
	}
}

func (r *RedisStore) key(state string) string {
	return r.prefix + state
}

func (r *RedisStore) Save(ctx context.Context, state string, l Login) error {
	if state == "" || l.Verifier == "" {
		return fmt.Errorf("oauthstate: missing state or verifier")
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("oauthstate: failed to marshal: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(state), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("oauthstate: state already in use")
	}
	return nil
}

// Consume uses GETDEL so two callbacks racing on one state cannot both win.
func (r *RedisStore) Consume(ctx context.Context, state string) (*Login, error) {
	if state == "" {
		return nil, ErrStateNotFound
	}
	val, err := r.client.GetDel(ctx, r.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	var l Login
	if err := json.Unmarshal([]byte(val), &l); err != nil {
		return nil, fmt.Errorf("oauthstate: failed to unmarshal: %w", err)
	}
	return &l, nil
}
