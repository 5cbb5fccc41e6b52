package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"BrentShift/internal/changepoint"
	"BrentShift/pkg/clickhouse"
	"BrentShift/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"5m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
		RateLimit       struct {
			Burst     float64 `yaml:"burst" default:"10"`
			PerSecond float64 `yaml:"per_second" default:"1"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log     logger.Config `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Data struct {
		PricesCSV        string `yaml:"prices_csv" default:"data/BrentOilPrices.csv"`
		EventsCSV        string `yaml:"events_csv"`
		Column           string `yaml:"column" default:"daily_return"`
		VolatilityWindow int    `yaml:"volatility_window" default:"30"`
	} `yaml:"data"`
	Backend struct {
		Type string `yaml:"type" default:"memory"` // memory or clickhouse
	} `yaml:"backend"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Redis      struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"brentshift"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Cache struct {
		ResultTTL     time.Duration `yaml:"result_ttl" default:"24h"`
		JobTTL        time.Duration `yaml:"job_ttl" default:"72h"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"256"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ResultsTopic string   `yaml:"results_topic" default:"brentshift.change-points"`
		PricesTopic  string   `yaml:"prices_topic" default:"brentshift.prices"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"brentshift"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Name       string        `yaml:"name" default:"analyses"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"queue"`
	Analysis struct {
		Timeout         time.Duration      `yaml:"timeout" default:"2m"`
		MaxSeriesLength int                `yaml:"max_series_length" default:"20000"`
		MaxSampleSweeps int                `yaml:"max_sample_sweeps" default:"20000"`
		MaxChains       int                `yaml:"max_chains" default:"8"`
		ProgressEvery   int                `yaml:"progress_every" default:"100"`
		EventWindowDays int                `yaml:"event_window_days" default:"60"`
		MaxStored       int                `yaml:"max_stored" default:"1000"`
		Sampler         changepoint.Config `yaml:"sampler"`
	} `yaml:"analysis"`
}

// Default returns a fully defaulted config, as if loaded from an empty file.
func Default() *Config {
	c := &Config{}
	c.Analysis.Sampler = changepoint.DefaultConfig()
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is honoured when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PRICES_CSV"); v != "" {
		c.Data.PricesCSV = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("SAMPLER_SEED"); v != "" {
		if s, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Analysis.Sampler.BaseSeed = s
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Backend.Type {
	case "memory", "clickhouse":
	default:
		return fmt.Errorf("backend.type must be 'memory' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	if c.Data.VolatilityWindow < 2 {
		return fmt.Errorf("data.volatility_window must be >= 2, got %d", c.Data.VolatilityWindow)
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout must be positive")
	}
	if c.Analysis.MaxChains < 1 {
		return fmt.Errorf("analysis.max_chains must be >= 1")
	}
	if err := c.Analysis.Sampler.Validate(); err != nil {
		return fmt.Errorf("analysis.sampler: %w", err)
	}
	return nil
}
