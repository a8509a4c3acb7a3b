package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ictbot/pkg/logger"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps"`
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logger struct {
		logger.Config `yaml:",inline"`
		Collect       bool          `yaml:"collect"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		Threshold     int           `yaml:"threshold"`
	} `yaml:"logger"`
	Strategy struct {
		Dir  string `yaml:"dir"`
		Name string `yaml:"name"`
	} `yaml:"strategy"`
	Data struct {
		Source          string `yaml:"source"` // clickhouse or bridge
		MaxBarsPerChunk int    `yaml:"max_bars_per_chunk"`
	} `yaml:"data"`
	Cache struct {
		Type   string        `yaml:"type"` // memory, redis or layered
		MaxAge time.Duration `yaml:"max_age"`
		MaxMem int           `yaml:"max_memory_entries"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		LedgerTopic  string   `yaml:"ledger_topic"`
		BarsTopic    string   `yaml:"bars_topic"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Bridge struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"bridge"`
	Stream struct {
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"stream"`
	Live struct {
		Enabled    bool   `yaml:"enabled"`
		Symbol     string `yaml:"symbol"`
		Timeframe  string `yaml:"timeframe"`
		WarmupBars int    `yaml:"warmup_bars"`
		WindowBars int    `yaml:"window_bars"`
		ModelKey   string `yaml:"model_key"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"live"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BRIDGE_API_KEY"); v != "" {
		c.Bridge.APIKey = v
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		c.Bridge.BaseURL = v
	}
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("LIVE_SYMBOL"); v != "" {
		c.Live.Symbol = v
	}

	return c, c.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Strategy.Dir == "" {
		c.Strategy.Dir = "configs"
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "default"
	}
	if c.Data.Source == "" {
		c.Data.Source = "clickhouse"
	}
	if c.Data.MaxBarsPerChunk <= 0 {
		c.Data.MaxBarsPerChunk = 99000
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.MaxAge <= 0 {
		c.Cache.MaxAge = 24 * time.Hour
	}
	if c.Live.Timeframe == "" {
		c.Live.Timeframe = "M5"
	}
	if c.Live.WarmupBars <= 0 {
		c.Live.WarmupBars = 100000
	}
	if c.Live.WindowBars <= 0 {
		c.Live.WindowBars = 5000
	}
	if c.Live.ModelKey == "" {
		c.Live.ModelKey = "ict_meta_model"
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "reports"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Data.Source {
	case "clickhouse", "bridge":
	default:
		return fmt.Errorf("data.source must be 'clickhouse' or 'bridge', got '%s'", c.Data.Source)
	}
	switch c.Cache.Type {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	if c.Cache.Type != "memory" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for cache.type '%s'", c.Cache.Type)
	}
	if c.Data.Source == "bridge" && c.Bridge.BaseURL == "" {
		return fmt.Errorf("bridge.base_url is required when data.source is 'bridge'")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Live.Enabled {
		if c.Live.Symbol == "" {
			return fmt.Errorf("live.symbol is required when live trading is enabled")
		}
		if c.Bridge.BaseURL == "" {
			return fmt.Errorf("bridge.base_url is required when live trading is enabled")
		}
		if c.Stream.URL == "" {
			return fmt.Errorf("stream.url is required when live trading is enabled")
		}
	}
	return nil
}
