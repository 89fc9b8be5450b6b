package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"` // pub/sub channel for committed transfers
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// LedgerConfig describes the deployed token.
type LedgerConfig struct {
	Symbol            string        `mapstructure:"symbol"`
	Decimals          int           `mapstructure:"decimals"`
	TotalSupply       uint64        `mapstructure:"total_supply"`
	GenesisAccount    string        `mapstructure:"genesis_account"`
	GenesisAllocation uint64        `mapstructure:"genesis_allocation"` // 0 means the whole supply
	ReserveAccount    string        `mapstructure:"reserve_account"`    // empty derives from the symbol name
	ConversionRatio   uint64        `mapstructure:"conversion_ratio"`
	Store             string        `mapstructure:"store"` // memory, postgres
	ReceiptTTL        time.Duration `mapstructure:"receipt_ttl"`
}

// WebhookConfig enables signed receipt delivery when URL is set.
type WebhookConfig struct {
	URL        string        `mapstructure:"url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type RateLimitConfig struct {
	SendCoinLimit  int64         `mapstructure:"send_coin_limit"`
	SendCoinWindow time.Duration `mapstructure:"send_coin_window"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	ReadWindow     time.Duration `mapstructure:"read_window"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Validate rejects configurations the ledger cannot start with.
func (c *Config) Validate() error {
	var errs []error

	l := c.Ledger
	if l.GenesisAccount == "" {
		errs = append(errs, errors.New("ledger.genesis_account is required"))
	}
	if l.GenesisAllocation > l.TotalSupply {
		errs = append(errs, fmt.Errorf("ledger.genesis_allocation %d exceeds ledger.total_supply %d", l.GenesisAllocation, l.TotalSupply))
	}
	if l.ConversionRatio == 0 {
		errs = append(errs, errors.New("ledger.conversion_ratio must be positive"))
	}
	switch l.Store {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("ledger.store %q is not one of %s, %s", l.Store, StoreMemory, StorePostgres))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Webhook.URL != "" && c.Webhook.Secret == "" {
		errs = append(errs, errors.New("webhook.secret is required when webhook.url is set"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MTC_ (MetaCoin).
// Nested keys use underscore: MTC_DATABASE_HOST, MTC_LEDGER_TOTAL_SUPPLY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "metacoin")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "metacoin:transfers")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "metacoin-ledger")
	v.SetDefault("ledger.symbol", "META")
	v.SetDefault("ledger.decimals", 0)
	v.SetDefault("ledger.total_supply", 100000)
	v.SetDefault("ledger.genesis_account", "")
	v.SetDefault("ledger.genesis_allocation", 10000)
	v.SetDefault("ledger.reserve_account", "")
	v.SetDefault("ledger.conversion_ratio", 2)
	v.SetDefault("ledger.store", StoreMemory)
	v.SetDefault("ledger.receipt_ttl", "24h")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "5s")
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("rate_limit.send_coin_limit", 60)
	v.SetDefault("rate_limit.send_coin_window", "1m")
	v.SetDefault("rate_limit.read_limit", 600)
	v.SetDefault("rate_limit.read_window", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// MTC_LEDGER_TOTAL_SUPPLY -> ledger.total_supply
	v.SetEnvPrefix("MTC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
