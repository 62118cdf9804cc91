package mq

import "context"

// Message 一条通用的业务消息
type Message struct {
	ID       string            // 消息ID (Redis Stream ID / Kafka offset)
	Topic    string            // 主题 (例如 "zeur_tx_events")
	Key      string            // 分区键，这里使用账户地址，保证同一账户的事件有序
	Payload  []byte            // 消息体 (JSON)
	Metadata map[string]string // 元数据
}

// Producer 生产者接口
type Producer interface {
	// Publish key 传空字符串则随机分区
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

// Consumer 消费者接口
type Consumer interface {
	// Subscribe 阻塞直到 ctx 结束；handler 返回 error 时消息不会被确认
	Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error
	Close() error
}
