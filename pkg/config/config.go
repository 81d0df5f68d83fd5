package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment    string         `mapstructure:"environment"`
	LogLevel       string         `mapstructure:"log_level"`
	ServiceName    string         `mapstructure:"service_name"`
	StatusInterval time.Duration  `mapstructure:"status_interval"`
	Database       DatabaseConfig `mapstructure:"database"`
	Redis          RedisConfig    `mapstructure:"redis"`
	Kafka          KafkaConfig    `mapstructure:"kafka"`
	Ranking        RankingConfig  `mapstructure:"ranking"`
	Server         ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig covers the relational store and the connection pool in front of it.
type DatabaseConfig struct {
	Driver            string        `mapstructure:"driver"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Name              string        `mapstructure:"name"`
	Charset           string        `mapstructure:"charset"`
	PoolSize          int           `mapstructure:"pool_size"`
	MaxOverflow       int           `mapstructure:"max_overflow"`
	Recycle           time.Duration `mapstructure:"recycle"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout"`
	ReleaseTimeout    time.Duration `mapstructure:"release_timeout"`
	SlowSaveThreshold time.Duration `mapstructure:"slow_save_threshold"`
}

type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	RankingKey string `mapstructure:"ranking_key"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// RankingConfig selects how leaderboard updates leave the save path.
type RankingConfig struct {
	Mode          string        `mapstructure:"mode"`
	TopN          int           `mapstructure:"top_n"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	WorkerCount   int           `mapstructure:"worker_count"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	RankingModeDirect = "direct"
	RankingModeKafka  = "kafka"
)

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("status_interval", 15*time.Second)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.max_overflow", 20)
	v.SetDefault("database.recycle", time.Hour)
	v.SetDefault("database.acquire_timeout", 30*time.Second)
	v.SetDefault("database.release_timeout", time.Second)
	v.SetDefault("database.slow_save_threshold", 2*time.Second)
	v.SetDefault("redis.ranking_key", "world_ranking")
	v.SetDefault("kafka.group_id", "ranker-group")
	v.SetDefault("ranking.mode", RankingModeDirect)
	v.SetDefault("ranking.top_n", 50)
	v.SetDefault("ranking.cache_ttl", time.Minute)
	v.SetDefault("ranking.batch_size", 200)
	v.SetDefault("ranking.flush_interval", 500*time.Millisecond)
	v.SetDefault("ranking.worker_count", 4)
	v.SetDefault("server.addr", ":8080")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Nested keys are not picked up by Unmarshal through AutomaticEnv alone.
	for _, key := range []string{
		"service_name", "environment", "log_level", "status_interval",
		"database.driver", "database.host", "database.port", "database.user",
		"database.password", "database.name", "database.charset",
		"database.pool_size", "database.max_overflow", "database.recycle",
		"database.acquire_timeout", "database.release_timeout", "database.slow_save_threshold",
		"redis.addr", "redis.password", "redis.db", "redis.ranking_key",
		"kafka.brokers", "kafka.topic", "kafka.group_id",
		"ranking.mode", "ranking.top_n", "ranking.cache_ttl", "ranking.batch_size",
		"ranking.flush_interval", "ranking.worker_count",
		"server.addr",
	} {
		v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Brokers arrive as a single comma separated string from the environment
	brokers := v.GetString("kafka.brokers")
	if brokers != "" && len(config.Kafka.Brokers) == 0 {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	switch c.Ranking.Mode {
	case RankingModeDirect:
	case RankingModeKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when ranking.mode is kafka")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic is required when ranking.mode is kafka")
		}
	default:
		return fmt.Errorf("ranking.mode %q is not supported", c.Ranking.Mode)
	}
	if c.Ranking.TopN <= 0 {
		return errors.New("ranking.top_n must be positive")
	}
	return nil
}

// Validate checks the database and pool section.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "mysql", "postgres":
		if d.Host == "" {
			return errors.New("database.host is required")
		}
		if d.User == "" {
			return errors.New("database.user is required")
		}
	case "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", d.Driver)
	}
	if d.Name == "" {
		return errors.New("database.name is required")
	}
	if d.PoolSize < 1 {
		return errors.New("database.pool_size must be at least 1")
	}
	if d.MaxOverflow < 0 {
		return errors.New("database.max_overflow must not be negative")
	}
	if d.Recycle <= 0 {
		return errors.New("database.recycle must be positive")
	}
	return nil
}
