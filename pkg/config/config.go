package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Balance  BalanceConfig  `mapstructure:"balance"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Assets   []AssetMeta    `mapstructure:"assets"`
}

type AppConfig struct {
	Env             string `mapstructure:"env"`
	HttpPort        string `mapstructure:"http_port"`
	GrpcPort        string `mapstructure:"grpc_port"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"` // 写接口限流，0 表示不限
}

// ChainConfig 单一目标网络的配置 (合约地址必须外部配置，不写死在代码里)
type ChainConfig struct {
	RpcUrl           string        `mapstructure:"rpc_url"`
	ChainID          int64         `mapstructure:"chain_id"`
	PoolAddress      string        `mapstructure:"pool_address"`
	PoolDataAddress  string        `mapstructure:"pool_data_address"`
	Confirmations    uint64        `mapstructure:"confirmations"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	SignTimeout      time.Duration `mapstructure:"sign_timeout"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	GasBufferPercent uint64        `mapstructure:"gas_buffer_percent"`
}

type WalletConfig struct {
	KeystorePath   string `mapstructure:"keystore_path"`   // go-ethereum V3 keystore 文件
	Password       string `mapstructure:"password"`        // 通常通过环境变量 WALLET_PASSWORD 传入
	Mnemonic       string `mapstructure:"mnemonic"`        // 仅开发环境使用
	DerivationPath string `mapstructure:"derivation_path"` // 默认 m/44'/60'/0'/0/0
}

type ApprovalConfig struct {
	Mode string `mapstructure:"mode"` // "unlimited" or "exact"
}

type BalanceConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	UseRedis bool          `mapstructure:"use_redis"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// AssetMeta 资产静态元数据 (symbol / icon / 协议标签)，链上数据为准，这里只做展示补充
type AssetMeta struct {
	Address   string   `mapstructure:"address"`
	Symbol    string   `mapstructure:"symbol"`
	Name      string   `mapstructure:"name"`
	Icon      string   `mapstructure:"icon"`
	Native    bool     `mapstructure:"native"`
	Protocols []string `mapstructure:"protocols"`
}

var Global Config

// Init 加载全局配置，失败直接退出 (供 cmd 使用)
func Init() {
	cfg, err := Load("")
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 读取配置文件 + 环境变量
// path 为空时在 . 和 ./config 下查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// 环境变量设置: chain.rpc_url -> CHAIN_RPC_URL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("Warning: Config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查必须由外部提供的字段
func (c *Config) Validate() error {
	if c.Chain.PoolAddress == "" || c.Chain.PoolDataAddress == "" {
		return fmt.Errorf("chain.pool_address and chain.pool_data_address are required")
	}
	switch c.Approval.Mode {
	case "unlimited", "exact":
	default:
		return fmt.Errorf("approval.mode must be unlimited or exact, got %q", c.Approval.Mode)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")
	v.SetDefault("app.grpc_port", "50051")
	v.SetDefault("app.rate_limit_per_min", 30)

	v.SetDefault("chain.rpc_url", "http://localhost:8545")
	v.SetDefault("chain.chain_id", 11155111)
	v.SetDefault("chain.pool_address", "")
	v.SetDefault("chain.pool_data_address", "")
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.poll_interval", "2s")
	v.SetDefault("chain.read_timeout", "15s")
	v.SetDefault("chain.sign_timeout", "2m")
	v.SetDefault("chain.confirm_timeout", "5m")
	v.SetDefault("chain.gas_buffer_percent", 20)

	v.SetDefault("wallet.keystore_path", "")
	v.SetDefault("wallet.password", "")
	v.SetDefault("wallet.mnemonic", "")
	v.SetDefault("wallet.derivation_path", "m/44'/60'/0'/0/0")

	v.SetDefault("approval.mode", "unlimited")
	v.SetDefault("balance.poll_interval", "10s")

	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.use_redis", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "redis")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "zeur_tx_events")
}
