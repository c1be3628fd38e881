package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	ServiceName    = "storefront"
	ServiceVersion = "0.1.0"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	Store          string        `yaml:"store"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
	Otel  OtelConfig  `yaml:"otel"`
	Log   LogConfig   `yaml:"log"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"` // empty disables the cache
	PoolSize int           `yaml:"pool_size"`
	ImageTTL time.Duration `yaml:"image_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // empty disables event publishing
	Topic   string   `yaml:"topic"`
}

type OtelConfig struct {
	Endpoint   string `yaml:"endpoint"` // empty disables trace export
	AuthHeader string `yaml:"auth_header"`
	TracesPath string `yaml:"traces_path"`
}

type LogConfig struct {
	Mode       string `yaml:"mode"` // "production" or "development"
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty logs to stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":50051",
		Store:          StoreMySQL,
		RequestTimeout: 5 * time.Second,
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/storefront?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			PoolSize: 100,
			ImageTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "order-events",
		},
		Otel: OtelConfig{
			TracesPath: "/v1/traces",
		},
		Log: LogConfig{
			Mode:       "production",
			Level:      "info",
			MaxSizeMB:  64,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
	}
}

// LoadConfig starts from defaults, applies the YAML file named by CONFIG_FILE
// if set, then environment overrides.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok {
			n, err := cast.ToIntE(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok {
			d, err := cast.ToDurationE(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}
	flag := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok {
			b, err := cast.ToBoolE(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("GRPC_ADDR", &c.GRPCAddr)
	str("STORE", &c.Store)
	str("MYSQL_DSN", &c.MySQL.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("OTEL_ENDPOINT", &c.Otel.Endpoint)
	str("OTEL_AUTH_HEADER", &c.Otel.AuthHeader)
	str("OTEL_TRACES_PATH", &c.Otel.TracesPath)
	str("LOG_MODE", &c.Log.Mode)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}

	for _, err := range []error{
		num("MYSQL_MAX_OPEN_CONNS", &c.MySQL.MaxOpenConns),
		num("MYSQL_MAX_IDLE_CONNS", &c.MySQL.MaxIdleConns),
		dur("MYSQL_CONN_MAX_LIFETIME", &c.MySQL.ConnMaxLifetime),
		flag("MYSQL_AUTO_MIGRATE", &c.MySQL.AutoMigrate),
		num("REDIS_POOL_SIZE", &c.Redis.PoolSize),
		dur("REDIS_IMAGE_TTL", &c.Redis.ImageTTL),
		dur("REQUEST_TIMEOUT", &c.RequestTimeout),
		num("LOG_MAX_SIZE_MB", &c.Log.MaxSizeMB),
		num("LOG_MAX_BACKUPS", &c.Log.MaxBackups),
		num("LOG_MAX_AGE_DAYS", &c.Log.MaxAgeDays),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when STORE=%s", StoreMySQL)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q, want %q or %q", c.Store, StoreMySQL, StoreMemory)
	}
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return fmt.Errorf("at least one of HTTP_ADDR or GRPC_ADDR is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
