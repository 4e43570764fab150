package store

import (
	"fmt"

	"github.com/rushteam/inferkit/core"
)

// 注意：此包只包含实现，接口定义在 core 包。
// 使用 core.Store 接口。
//
// 示例：
//
//	var store core.Store = NewMemoryStore()

// ErrNotFound 是 core.ErrStoreNotFound 的别名，方便包内使用。
var ErrNotFound = core.ErrStoreNotFound

// Backend 缓存后端类型
type Backend string

const (
	BackendNone   Backend = "none"
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config 存储配置
type Config struct {
	Backend   Backend
	RedisAddr string
	RedisDB   int
	RedisPass string
}

// New 根据配置创建 Store；BackendNone 返回 (nil, nil)，表示不启用缓存。
func New(cfg Config) (core.Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		rs, err := NewRedisStore(cfg.RedisAddr, cfg.RedisDB, WithRedisPassword(cfg.RedisPass))
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
