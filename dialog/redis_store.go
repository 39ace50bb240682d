package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig connects the redis-backed store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisStore persists dialogs as JSON values in Redis. Suitable for
// multi-node deployments where dialogs are shared across processes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects and verifies the backend before returning.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, storage("connect to redis", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "convodesk:"
	}
	return &RedisStore{client: client, keyPrefix: prefix + "dialog:"}, nil
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Dialog, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storage("read dialog", err)
	}

	var d Dialog
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, storage("decode dialog", err)
	}
	return &d, nil
}

func (s *RedisStore) Save(ctx context.Context, d *Dialog) error {
	data, err := json.Marshal(d)
	if err != nil {
		return storage("encode dialog", err)
	}
	if err := s.client.Set(ctx, s.key(d.ID), data, 0).Err(); err != nil {
		return storage("write dialog", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return storage("delete dialog", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Dialog, error) {
	var out []*Dialog
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, storage("read dialog", err)
		}
		var d Dialog
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, storage("decode dialog", err)
		}
		out = append(out, &d)
	}
	if err := iter.Err(); err != nil {
		return nil, storage("scan dialogs", err)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storage("ping redis", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
