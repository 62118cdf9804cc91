package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisProducer 基于 Redis Streams (XADD)
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

// NewRedisProducer maxLen > 0 时按近似长度裁剪 Stream
func NewRedisProducer(client *redis.Client, maxLen int64) *RedisProducer {
	return &RedisProducer{client: client, maxLen: maxLen}
}

func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// Close 连接由调用方持有，这里不关闭
func (p *RedisProducer) Close() error {
	return nil
}

// RedisConsumer 基于消费者组 (XREADGROUP)
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
	logger *zap.Logger
}

func NewRedisConsumer(client *redis.Client, group, name string, logger *zap.Logger) *RedisConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisConsumer{client: client, group: group, name: name, logger: logger}
}

func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// XGROUP CREATE <stream> <group> $ MKSTREAM
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	c.logger.Info("redis stream subscribed", zap.String("topic", topic), zap.String("group", c.group))

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("redis stream read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, x := range stream.Messages {
				c.handle(ctx, topic, x, handler)
			}
		}
	}
}

func (c *RedisConsumer) handle(ctx context.Context, topic string, x redis.XMessage, handler func(msg *Message) error) {
	payload, ok := x.Values["payload"].(string)
	if !ok {
		c.logger.Warn("malformed stream message", zap.String("id", x.ID))
		c.ack(ctx, topic, x.ID)
		return
	}
	key, _ := x.Values["key"].(string)

	msg := &Message{ID: x.ID, Topic: topic, Key: key, Payload: []byte(payload)}
	if err := handler(msg); err != nil {
		c.logger.Warn("stream message handler failed", zap.String("id", x.ID), zap.Error(err))
		return
	}
	c.ack(ctx, topic, x.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		c.logger.Warn("xack failed", zap.String("id", id), zap.Error(err))
	}
}

func (c *RedisConsumer) Close() error {
	return c.client.Close()
}
