package lock

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁
	// key: 锁的唯一标识
	// ttl: 锁的过期时间
	// 返回: (是否成功, error)
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 释放锁
	Release(ctx context.Context, key string) error
}

// RedisLock 基于 Redis SETNX 的实现
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// SET key value NX EX ttl
	return l.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, "lock:"+key).Err()
}

// MemoryLock 单实例部署时使用，go-cache 的 Add 在 key 已存在时失败，语义等同 SETNX
type MemoryLock struct {
	c *gocache.Cache
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{c: gocache.New(time.Minute, 5*time.Minute)}
}

func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := l.c.Add("lock:"+key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (l *MemoryLock) Release(ctx context.Context, key string) error {
	l.c.Delete("lock:" + key)
	return nil
}
