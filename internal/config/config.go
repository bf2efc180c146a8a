// Package config loads swapd configuration from YAML files and SWAPTRADE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Queue       QueueConfig      `mapstructure:"queue"`
	Swap        SwapConfig       `mapstructure:"swap"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// RateLimit is a per-client limit such as "600-M"; empty disables it
	RateLimit       string        `mapstructure:"rate_limit"`
}

// Addr returns host:port for the HTTP listener
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces the price and reserve keys written by the feed
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MarketDataConfig seeds the in-memory feed used when Redis is disabled.
// Reserve keys are "FROM/TO", e.g. btc/eth: "39.6".
type MarketDataConfig struct {
	Prices   map[string]string `mapstructure:"prices"`
	Reserves map[string]string `mapstructure:"reserves"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

type QueueConfig struct {
	Backend     string        `mapstructure:"backend"` // memory or badger
	BadgerPath  string        `mapstructure:"badger_path"`
	Capacity    int           `mapstructure:"capacity"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type SwapConfig struct {
	Assets                   []string      `mapstructure:"assets"`
	DefaultSlippageTolerance float64       `mapstructure:"default_slippage_tolerance"`
	PriceImpactCeiling       float64       `mapstructure:"price_impact_ceiling"`
	QuoteTimeout             time.Duration `mapstructure:"quote_timeout"`
	LiquidityTimeout         time.Duration `mapstructure:"liquidity_timeout"`
	AmountScale              int32         `mapstructure:"amount_scale"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}

// EnvPrefix is prepended to every environment override, e.g. SWAPTRADE_QUEUE_CONCURRENCY
const EnvPrefix = "SWAPTRADE"

var defaultConfigPaths = []string{
	"./config.yaml",
	"./configs/config.yaml",
	"/etc/swaptrade/config.yaml",
}

// Load reads configuration. Missing files are skipped; explicitly named paths
// that exist but fail to parse are an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if len(paths) == 0 {
		paths = defaultConfigPaths
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", "600-M")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:swaptrade.db?cache=shared")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "marketdata")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "swap-events")
	v.SetDefault("kafka.write_timeout", time.Second)
	v.SetDefault("kafka.batch_timeout", 10*time.Millisecond)
	v.SetDefault("kafka.required_acks", 1)

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.badger_path", "./data/queue")
	v.SetDefault("queue.capacity", 10000)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.base_delay", time.Second)
	v.SetDefault("queue.max_delay", time.Minute)

	v.SetDefault("swap.assets", []string{"BTC", "ETH", "USDT", "USDC", "SOL"})
	v.SetDefault("swap.default_slippage_tolerance", 0.005)
	v.SetDefault("swap.price_impact_ceiling", 0.10)
	v.SetDefault("swap.quote_timeout", 2*time.Second)
	v.SetDefault("swap.liquidity_timeout", 2*time.Second)
	v.SetDefault("swap.amount_scale", 8)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.metrics_enabled", false)
	v.SetDefault("telemetry.service_name", "swapd")
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Queue.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("unsupported queue backend %q", c.Queue.Backend)
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency must be positive")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be positive")
	}
	if c.Swap.DefaultSlippageTolerance < 0 || c.Swap.DefaultSlippageTolerance >= 1 {
		return fmt.Errorf("swap.default_slippage_tolerance must be in [0, 1)")
	}
	if c.Swap.PriceImpactCeiling <= 0 || c.Swap.PriceImpactCeiling >= 1 {
		return fmt.Errorf("swap.price_impact_ceiling must be in (0, 1)")
	}
	if len(c.Swap.Assets) == 0 {
		return fmt.Errorf("swap.assets must not be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}
