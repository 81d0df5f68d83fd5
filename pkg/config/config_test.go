package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() AppConfig {
	return AppConfig{
		ServiceName: "tycoond",
		Database: DatabaseConfig{
			Driver:      "mysql",
			Host:        "127.0.0.1",
			Port:        3306,
			User:        "world",
			Name:        "world",
			PoolSize:    10,
			MaxOverflow: 20,
			Recycle:     time.Hour,
		},
		Ranking: RankingConfig{Mode: RankingModeDirect, TopN: 50},
	}
}

func TestConfigValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid pool sizing passes validation", prop.ForAll(
		func(serviceName string, poolSize, overflow int) bool {
			cfg := validConfig()
			cfg.ServiceName = serviceName
			cfg.Database.PoolSize = poolSize
			cfg.Database.MaxOverflow = overflow
			return cfg.Validate() == nil
		},
		gen.Identifier(),
		gen.IntRange(1, 64),
		gen.IntRange(0, 64),
	))

	properties.Property("non-positive pool size fails validation", prop.ForAll(
		func(poolSize int) bool {
			cfg := validConfig()
			cfg.Database.PoolSize = poolSize
			return cfg.Validate() != nil
		},
		gen.IntRange(-10, 0),
	))

	properties.Property("negative overflow fails validation", prop.ForAll(
		func(overflow int) bool {
			cfg := validConfig()
			cfg.Database.MaxOverflow = overflow
			return cfg.Validate() != nil
		},
		gen.IntRange(-10, -1),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *AppConfig)
	}{
		{"missing service name", func(c *AppConfig) { c.ServiceName = "" }},
		{"unknown driver", func(c *AppConfig) { c.Database.Driver = "oracle" }},
		{"mysql without host", func(c *AppConfig) { c.Database.Host = "" }},
		{"missing database name", func(c *AppConfig) { c.Database.Name = "" }},
		{"zero recycle", func(c *AppConfig) { c.Database.Recycle = 0 }},
		{"kafka mode without brokers", func(c *AppConfig) {
			c.Ranking.Mode = RankingModeKafka
			c.Kafka.Topic = "ranking"
		}},
		{"kafka mode without topic", func(c *AppConfig) {
			c.Ranking.Mode = RankingModeKafka
			c.Kafka.Brokers = []string{"localhost:9092"}
		}},
		{"unknown ranking mode", func(c *AppConfig) { c.Ranking.Mode = "carrier-pigeon" }},
		{"zero top n", func(c *AppConfig) { c.Ranking.TopN = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSQLiteNeedsNoHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Host = ""
	cfg.Database.User = ""
	cfg.Database.Name = "/tmp/world.db"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVICE_NAME", "tycoond")
	t.Setenv("DATABASE_USER", "world")
	t.Setenv("DATABASE_NAME", "world")
	t.Setenv("DATABASE_POOL_SIZE", "4")
	t.Setenv("DATABASE_RECYCLE", "90s")
	t.Setenv("RANKING_MODE", "kafka")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_TOPIC", "world-ranking")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "tycoond", cfg.ServiceName)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Database.PoolSize)
	assert.Equal(t, 20, cfg.Database.MaxOverflow)
	assert.Equal(t, 90*time.Second, cfg.Database.Recycle)
	assert.Equal(t, 30*time.Second, cfg.Database.AcquireTimeout)
	assert.Equal(t, time.Second, cfg.Database.ReleaseTimeout)
	assert.Equal(t, 2*time.Second, cfg.Database.SlowSaveThreshold)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "world-ranking", cfg.Kafka.Topic)
	assert.Equal(t, 50, cfg.Ranking.TopN)

	os.Unsetenv("SERVICE_NAME")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	// Missing file is not an error
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TYCOON_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TYCOON_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("TYCOON_DOTENV_PROBE"))
}
