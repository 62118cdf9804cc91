// Package app 组装各模块，供 zeur-server 与 zeur-cli 共用
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"zeur-core/internal/approval"
	"zeur-core/internal/balance"
	"zeur-core/internal/chain"
	"zeur-core/internal/lending"
	"zeur-core/internal/notify"
	"zeur-core/internal/service/mq"
	"zeur-core/internal/txflow"
	"zeur-core/pkg/cache"
	"zeur-core/pkg/config"
	"zeur-core/pkg/database"
	"zeur-core/pkg/lock"
	"zeur-core/pkg/logger"
)

const streamMaxLen = 10000

// Core 一个钱包账户对应的全部领域服务
type Core struct {
	Config   *config.Config
	Gateway  *chain.Gateway
	Market   *lending.Market
	Balances *balance.Oracle
	Supply   *lending.SupplyService
	Borrow   *lending.BorrowService
	Redis    *redis.Client

	client   *ethclient.Client
	producer mq.Producer
}

// Build 按配置连接 RPC / Redis / MQ 并构造服务；s 为 nil 时只读
func Build(ctx context.Context, cfg *config.Config, s chain.Signer) (*Core, error) {
	// 1. 连接 RPC
	client, err := ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.Chain.RpcUrl, err)
	}
	gw := chain.NewGateway(client, s, chain.Options{
		Pool:          common.HexToAddress(cfg.Chain.PoolAddress),
		PoolData:      common.HexToAddress(cfg.Chain.PoolDataAddress),
		ChainID:       big.NewInt(cfg.Chain.ChainID),
		Confirmations: cfg.Chain.Confirmations,
		PollInterval:  cfg.Chain.PollInterval,
		ReadTimeout:   cfg.Chain.ReadTimeout,
	}, logger.Named("chain"))

	core := &Core{Config: cfg, Gateway: gw, client: client}

	// 2. 连接 Redis (可选)
	if cfg.Redis.Enabled {
		rdb, err := database.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			client.Close()
			return nil, err
		}
		core.Redis = rdb
	}

	// 3. 读模型缓存：本地 L1，开启 Redis 时叠加 L2
	var c cache.Cache = cache.NewMemoryCache(cfg.Cache.TTL, 2*cfg.Cache.TTL)
	if cfg.Cache.UseRedis && core.Redis != nil {
		c = cache.NewMultiLevelCache(c, cache.NewRedisCache(core.Redis))
	}
	core.Market = lending.NewMarket(gw, c, cfg.Cache.TTL, cfg.Assets, logger.Named("market"))
	core.Balances = balance.NewOracle(gw, cfg.Balance.PollInterval, logger.Named("balance"))

	// 4. 通知：日志 + 消息队列
	notifiers := notify.Multi{notify.NewLogNotifier(logger.Named("notify"))}
	if producer := newProducer(cfg, core.Redis); producer != nil {
		core.producer = producer
		var l lock.DistributedLock = lock.NewMemoryLock()
		if core.Redis != nil {
			l = lock.NewRedisLock(core.Redis)
		}
		notifiers = append(notifiers, notify.NewMQNotifier(producer, cfg.Kafka.Topic, l))
	}

	// 5. 领域服务
	approver := approval.NewManager(gw, approval.Options{
		Mode:             approval.Mode(cfg.Approval.Mode),
		GasBufferPercent: cfg.Chain.GasBufferPercent,
	}, logger.Named("approval"))
	opts := txflow.Options{
		ReadTimeout:    cfg.Chain.ReadTimeout,
		SignTimeout:    cfg.Chain.SignTimeout,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
	}
	d := lending.Deps{
		Market:   core.Market,
		Balances: core.Balances,
		Chain:    gw,
		Approver: approver,
		Notifier: notifiers,
		Pool:     common.HexToAddress(cfg.Chain.PoolAddress),
		Options:  opts,
		Logger:   logger.Named("txflow"),
	}
	core.Supply = lending.NewSupplyService(d)
	core.Borrow = lending.NewBorrowService(d)

	logger.Info("core initialized",
		zap.String("account", gw.Account().Hex()),
		zap.String("pool", cfg.Chain.PoolAddress),
		zap.Int64("chain_id", cfg.Chain.ChainID),
		zap.String("approval_mode", cfg.Approval.Mode))
	return core, nil
}

// Flows 全部操作的 orchestrator
func (c *Core) Flows() []*txflow.Orchestrator {
	return append(c.Supply.Flows(), c.Borrow.Flows()...)
}

// NewConsumer 事件订阅方，与发布方使用同一种 MQ
func (c *Core) NewConsumer(group, name string) (mq.Consumer, error) {
	if c.Config.Redis.MQType == "kafka" {
		return mq.NewKafkaConsumer(c.Config.Kafka.Brokers, group, logger.Named("mq")), nil
	}
	if c.Redis == nil {
		return nil, errors.New("redis streams require redis.enabled=true")
	}
	return mq.NewRedisConsumer(c.Redis, group, name, logger.Named("mq")), nil
}

func (c *Core) Close() {
	for _, f := range c.Flows() {
		f.Reset()
	}
	if c.producer != nil {
		_ = c.producer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	c.client.Close()
}

func newProducer(cfg *config.Config, rdb *redis.Client) mq.Producer {
	switch {
	case cfg.Redis.MQType == "kafka" && len(cfg.Kafka.Brokers) > 0:
		logger.Info("使用 Kafka 作为消息队列...")
		return mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case rdb != nil:
		logger.Info("使用 Redis Streams 作为消息队列...")
		return mq.NewRedisProducer(rdb, streamMaxLen)
	}
	return nil
}
