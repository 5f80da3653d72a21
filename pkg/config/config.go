package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Store     StoreConfig     `mapstructure:"store"`
	Client    ClientConfig    `mapstructure:"client"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`    // debug, info, warn, error
	Encoding string `mapstructure:"encoding"` // json or console
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type BroadcastConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
}

type QuotesConfig struct {
	Source string `mapstructure:"source"` // yahoo or synthetic
}

type RegistryConfig struct {
	Source   string   `mapstructure:"source"` // static, catalog or redis
	Symbols  []string `mapstructure:"symbols"`
	Catalog  string   `mapstructure:"catalog"`
	RedisKey string   `mapstructure:"redis_key"`
}

type StoreConfig struct {
	Backend string        `mapstructure:"backend"` // memory or redis
	TTL     time.Duration `mapstructure:"ttl"`
}

type ClientConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	PrintInterval  time.Duration `mapstructure:"print_interval"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so APP_PORT and friends resolve below
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Flat env vars only reach nested keys once bound
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic")
	bindEnv(v, "broadcast.interval", "broadcast.fetch_concurrency", "broadcast.fetch_timeout", "broadcast.publish_timeout")
	bindEnv(v, "quotes.source")
	bindEnv(v, "registry.source", "registry.symbols", "registry.catalog", "registry.redis_key")
	bindEnv(v, "store.backend", "store.ttl")
	bindEnv(v, "client.url", "client.reconnect_delay", "client.read_timeout", "client.print_interval")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_ticks")

	v.SetDefault("broadcast.interval", 30*time.Second)
	v.SetDefault("broadcast.fetch_concurrency", 4)
	v.SetDefault("broadcast.fetch_timeout", 10*time.Second)
	v.SetDefault("broadcast.publish_timeout", 10*time.Second)

	v.SetDefault("quotes.source", "yahoo")

	v.SetDefault("registry.source", "static")
	v.SetDefault("registry.symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"})
	v.SetDefault("registry.catalog", "catalog.yaml")
	v.SetDefault("registry.redis_key", "symbols:tracked")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.ttl", time.Hour)

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.reconnect_delay", 5*time.Second)
	v.SetDefault("client.read_timeout", 60*time.Second)
	v.SetDefault("client.print_interval", 10*time.Second)
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast interval must be positive, got %s", c.Broadcast.Interval)
	}
	if c.Broadcast.FetchConcurrency <= 0 {
		return fmt.Errorf("broadcast fetch concurrency must be positive, got %d", c.Broadcast.FetchConcurrency)
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client reconnect delay must be positive, got %s", c.Client.ReconnectDelay)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
