package cache

import (
	"context"
	"time"
)

// PrefixDeleter 支持按前缀批量失效的缓存
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// MultiLevelCache 实现多级缓存 (L1: Memory, L2: Redis)
type MultiLevelCache struct {
	local  Cache
	remote Cache
}

func NewMultiLevelCache(local, remote Cache) *MultiLevelCache {
	return &MultiLevelCache{
		local:  local,
		remote: remote,
	}
}

func (m *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// L1 的 TTL 取 L2 的一半，减少多实例间脏读
	_ = m.local.Set(ctx, key, value, ttl/2)
	return m.remote.Set(ctx, key, value, ttl)
}

func (m *MultiLevelCache) Get(ctx context.Context, key string, target interface{}) error {
	// 1. 查 L1
	if err := m.local.Get(ctx, key, target); err == nil {
		return nil
	}

	// 2. 查 L2，命中后回写 L1
	if err := m.remote.Get(ctx, key, target); err == nil {
		_ = m.local.Set(ctx, key, target, time.Minute)
		return nil
	}

	return ErrMiss
}

func (m *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = m.local.Delete(ctx, key)
	return m.remote.Delete(ctx, key)
}

func (m *MultiLevelCache) DeletePrefix(ctx context.Context, prefix string) error {
	if d, ok := m.local.(PrefixDeleter); ok {
		_ = d.DeletePrefix(ctx, prefix)
	}
	if d, ok := m.remote.(PrefixDeleter); ok {
		return d.DeletePrefix(ctx, prefix)
	}
	return nil
}
