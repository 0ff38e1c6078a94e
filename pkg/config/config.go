package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Storage struct {
		Type string `yaml:"type"` // clickhouse | memory
	} `yaml:"storage"`
	FMP struct {
		APIKey    string        `yaml:"api_key"`
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit struct {
			MaxCalls int           `yaml:"max_calls"`
			Window   time.Duration `yaml:"window"`
		} `yaml:"rate_limit"`
	} `yaml:"fmp"`
	Ingest struct {
		Workers          int    `yaml:"workers"`
		LookbackDays     int    `yaml:"lookback_days"`
		NewsLookbackDays int    `yaml:"news_lookback_days"`
		NewsTopK         int    `yaml:"news_top_k"`
		Schedule         string `yaml:"schedule"` // cron expression
		RunOnStart       bool   `yaml:"run_on_start"`
	} `yaml:"ingest"`
	Signals struct {
		ZWindow         int     `yaml:"z_window"`
		RVolWindow      int     `yaml:"rvol_window"`
		RVolMinSessions int     `yaml:"rvol_min_sessions"`
		ExtremeWindow   int     `yaml:"extreme_window"`
		MAShort         int     `yaml:"ma_short"`
		MALong          int     `yaml:"ma_long"`
		WeightZ         float64 `yaml:"weight_z"`
		WeightRVol      float64 `yaml:"weight_rvol"`
		WeightFlags     float64 `yaml:"weight_flags"`
		MinScore        float64 `yaml:"min_score"`
	} `yaml:"signals"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
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
	Cache struct {
		TTL   time.Duration `yaml:"ttl"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
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

// LoadWithEnv loads config from YAML and overrides with environment
// variables. The API key is expected to arrive via FMP_API_KEY in most
// deployments; it never belongs in the checked-in YAML.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("FMP_API_KEY"); v != "" {
		c.FMP.APIKey = v
	}
	if v := os.Getenv("FMP_BASE_URL"); v != "" {
		c.FMP.BaseURL = v
	}
	if v := os.Getenv("STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.Workers = n
		}
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.FMP.RateLimit.MaxCalls == 0 {
		c.FMP.RateLimit.MaxCalls = 300
	}
	if c.FMP.RateLimit.Window == 0 {
		c.FMP.RateLimit.Window = time.Minute
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 8
	}
	if c.Ingest.LookbackDays == 0 {
		c.Ingest.LookbackDays = 400
	}
	if c.Ingest.NewsLookbackDays == 0 {
		c.Ingest.NewsLookbackDays = 7
	}
	if c.Ingest.NewsTopK == 0 {
		c.Ingest.NewsTopK = 25
	}
	if c.Signals.ZWindow == 0 {
		c.Signals.ZWindow = 20
	}
	if c.Signals.RVolWindow == 0 {
		c.Signals.RVolWindow = 60
	}
	if c.Signals.RVolMinSessions == 0 {
		c.Signals.RVolMinSessions = 20
	}
	if c.Signals.ExtremeWindow == 0 {
		c.Signals.ExtremeWindow = 252
	}
	if c.Signals.MAShort == 0 {
		c.Signals.MAShort = 50
	}
	if c.Signals.MALong == 0 {
		c.Signals.MALong = 200
	}
	if c.Signals.WeightZ == 0 {
		c.Signals.WeightZ = 1
	}
	if c.Signals.WeightRVol == 0 {
		c.Signals.WeightRVol = 1
	}
	if c.Signals.WeightFlags == 0 {
		c.Signals.WeightFlags = 1
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 6 * time.Hour
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Storage.Type == "" {
		return fmt.Errorf("storage.type is required")
	}
	if c.Storage.Type != "clickhouse" && c.Storage.Type != "memory" {
		return fmt.Errorf("storage.type must be 'clickhouse' or 'memory', got '%s'", c.Storage.Type)
	}
	if c.FMP.APIKey == "" {
		return fmt.Errorf("fmp.api_key is required (set FMP_API_KEY)")
	}
	if c.FMP.RateLimit.MaxCalls <= 0 || c.FMP.RateLimit.Window <= 0 {
		return fmt.Errorf("fmp.rate_limit must have positive max_calls and window")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
