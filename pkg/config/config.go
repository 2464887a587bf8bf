package config

import (
	"fmt"
	"os"
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
	Trading struct {
		Mode                 string        `yaml:"mode"` // on, off, dry-run
		Accounts             []string      `yaml:"accounts"`
		CycleInterval        time.Duration `yaml:"cycle_interval"`
		SyncInterval         time.Duration `yaml:"sync_interval"`
		SignalTTL            time.Duration `yaml:"signal_ttl"`
		MaxOrdersPerCycle    int           `yaml:"max_orders_per_cycle"`
		ExecutionGrace       time.Duration `yaml:"execution_grace"`
		PriceSkewPct         float64       `yaml:"price_skew_pct"`
		MaxExecutionAttempts int           `yaml:"max_execution_attempts"`
		MaxHoldingDays       int           `yaml:"max_holding_days"`
		MinStrength          float64       `yaml:"min_strength"`
		MinConfidence        float64       `yaml:"min_confidence"`
		Limits               struct {
			MaxOrderNotionalUSD float64 `yaml:"max_order_notional_usd"`
			MaxGammaPctEquity   float64 `yaml:"max_gamma_pct_equity"`
			MaxVegaPctEquity    float64 `yaml:"max_vega_pct_equity"`
			MaxThetaPctEquity   float64 `yaml:"max_theta_pct_equity"`
		} `yaml:"limits"`
		Shock struct {
			AlertDropPct        float64 `yaml:"alert_drop_pct"`
			EmergencyDropPct    float64 `yaml:"emergency_drop_pct"`
			EmergencyReducePct  float64 `yaml:"emergency_reduce_pct"`
			MaxNewRiskFactor    float64 `yaml:"max_new_risk_factor"`
			EarningsGammaCapUSD float64 `yaml:"earnings_gamma_cap_usd"`
		} `yaml:"shock"`
		LotSizes map[string]float64 `yaml:"lot_sizes"` // per-symbol minimum lots (HK-style)
	} `yaml:"trading"`
	Broker struct {
		Type    string        `yaml:"type"` // gateway or simulated
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"broker"`
	Quotes struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"quotes"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		CandidatesTopic string   `yaml:"candidates_topic"`
		EventsTopic     string   `yaml:"events_topic"`
		RequiredAcks    int      `yaml:"required_acks"`
		Compression     string   `yaml:"compression"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
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
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Audit struct {
		Workers    int `yaml:"workers"`
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"audit"`
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
	c.ApplyDefaults()

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

	if v := os.Getenv("TRADE_MODE"); v != "" {
		c.Trading.Mode = v
	}
	if v := os.Getenv("TRADE_ACCOUNTS"); v != "" {
		c.Trading.Accounts = strings.Split(v, ",")
	}
	if v := os.Getenv("BROKER_TYPE"); v != "" {
		c.Broker.Type = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("QUOTES_API_KEY"); v != "" {
		c.Quotes.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyDefaults fills unset trading and audit settings with safe baselines.
func (c *Config) ApplyDefaults() {
	t := &c.Trading
	if t.CycleInterval <= 0 {
		t.CycleInterval = 5 * time.Minute
	}
	if t.SyncInterval <= 0 {
		t.SyncInterval = 30 * time.Second
	}
	if t.SignalTTL <= 0 {
		t.SignalTTL = 2 * time.Hour
	}
	if t.MaxOrdersPerCycle <= 0 {
		t.MaxOrdersPerCycle = 5
	}
	if t.ExecutionGrace <= 0 {
		t.ExecutionGrace = 3 * time.Second
	}
	if t.PriceSkewPct <= 0 {
		t.PriceSkewPct = 0.002
	}
	if t.MaxExecutionAttempts <= 0 {
		t.MaxExecutionAttempts = 5
	}
	if t.MaxHoldingDays <= 0 {
		t.MaxHoldingDays = 10
	}
	if t.Limits.MaxOrderNotionalUSD <= 0 {
		t.Limits.MaxOrderNotionalUSD = 20000
	}
	if t.Limits.MaxGammaPctEquity <= 0 {
		t.Limits.MaxGammaPctEquity = 5
	}
	if t.Limits.MaxVegaPctEquity <= 0 {
		t.Limits.MaxVegaPctEquity = 2
	}
	if t.Limits.MaxThetaPctEquity <= 0 {
		t.Limits.MaxThetaPctEquity = 1
	}
	if t.Shock.AlertDropPct <= 0 {
		t.Shock.AlertDropPct = 3
	}
	if t.Shock.EmergencyDropPct <= 0 {
		t.Shock.EmergencyDropPct = 6
	}
	if t.Shock.EmergencyReducePct <= 0 {
		t.Shock.EmergencyReducePct = 50
	}
	if t.Shock.MaxNewRiskFactor <= 0 {
		t.Shock.MaxNewRiskFactor = 1.0
	}
	if c.Audit.Workers <= 0 {
		c.Audit.Workers = 2
	}
	if c.Audit.MaxRetries <= 0 {
		c.Audit.MaxRetries = 3
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Trading.Mode {
	case "on", "off", "dry-run":
	default:
		return fmt.Errorf("trading.mode must be 'on', 'off' or 'dry-run', got '%s'", c.Trading.Mode)
	}
	if len(c.Trading.Accounts) == 0 {
		return fmt.Errorf("trading.accounts cannot be empty")
	}
	switch c.Broker.Type {
	case "gateway", "simulated":
	default:
		return fmt.Errorf("broker.type must be 'gateway' or 'simulated', got '%s'", c.Broker.Type)
	}
	if c.Broker.Type == "gateway" && c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required for gateway broker")
	}
	return nil
}
