package redisstore

import (
	"context"

	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ store.Store = (*Store)(nil)

// Store persists session values in redis, optionally under a key prefix so
// several devices or users can share one instance.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client. The store takes ownership of client and
// closes it in Close.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Connect creates a client for addr and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisstore.Connect] ping redis")
	}
	return New(client, prefix), nil
}

func (s *Store) key(k store.Key) string {
	return s.prefix + string(k)
}

// Write sets every entry with a single MSET inside a MULTI/EXEC block.
func (s *Store) Write(ctx context.Context, entries map[store.Key]string) error {
	if len(entries) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(entries)*2)
	for k, v := range entries {
		pairs = append(pairs, s.key(k), v)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.MSet(ctx, pairs...)
		return nil
	})
	if err != nil {
		return autherrors.Wrap(autherrors.KindStorage, "[redisstore.Write]", err)
	}
	return nil
}

func (s *Store) ReadAll(ctx context.Context, keys []store.Key) (map[store.Key]*string, error) {
	out := make(map[store.Key]*string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = s.key(k)
	}

	values, err := s.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorage, "[redisstore.ReadAll]", err)
	}
	for i, k := range keys {
		if v, ok := values[i].(string); ok {
			out[k] = &v
		} else {
			out[k] = nil
		}
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, keys []store.Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = s.key(k)
	}
	if err := s.client.Del(ctx, names...).Err(); err != nil {
		return autherrors.Wrap(autherrors.KindStorage, "[redisstore.Clear]", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
