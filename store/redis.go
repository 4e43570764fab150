package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rushteam/inferkit/core"
)

// RedisStore 是 Redis 实现的 Store。
// 多实例部署时用于共享预测缓存。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption Redis 配置选项
type RedisOption func(*redis.Options, *RedisStore)

// WithRedisPassword 设置密码
func WithRedisPassword(password string) RedisOption {
	return func(o *redis.Options, _ *RedisStore) {
		o.Password = password
	}
}

// WithRedisPrefix 设置 key 前缀
func WithRedisPrefix(prefix string) RedisOption {
	return func(_ *redis.Options, s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	options := &redis.Options{
		Addr: addr,
		DB:   db,
	}
	s := &RedisStore{prefix: "inferkit:"}
	for _, opt := range opts {
		opt(options, s)
	}
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis ping failed", err)
	}
	s.client = client
	return s, nil
}

// NewRedisStoreWithClient 使用已有的客户端（测试或共享连接池）
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	var expiration time.Duration
	if len(ttl) > 0 && ttl[0] > 0 {
		expiration = time.Duration(ttl[0]) * time.Second
	}
	return r.client.Set(ctx, r.prefix+key, value, expiration).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ core.Store = (*RedisStore)(nil)
