package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration wraps time.Duration for human-readable JSON values ("30s", "5m")
type Duration struct {
	time.Duration
}

// UnmarshalJSON parses a duration from a JSON string
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON renders the duration back to its string form
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Config is the complete engine configuration. It is loaded once at
// process start and treated as immutable for the run.
type Config struct {
	Symbols    []string         `json:"symbols"`
	Venue      VenueConfig      `json:"venue"`
	Strategy   StrategyConfig   `json:"strategy"`
	Risk       RiskConfig       `json:"risk"`
	Execution  ExecutionConfig  `json:"execution"`
	Journal    JournalConfig    `json:"journal"`
	Monitoring MonitoringConfig `json:"monitoring"`
	Logging    LoggingConfig    `json:"logging"`
}

// VenueConfig selects and parameterizes the execution venue
type VenueConfig struct {
	Name       string `json:"name"`     // "sim" or "bybit"
	Category   string `json:"category"` // spot, linear, inverse
	APIKey     string `json:"-"`
	APISecret  string `json:"-"`
	Demo       bool   `json:"demo"`
	WSEndpoint string `json:"ws_endpoint"` // generic websocket tick feed, optional
}

// StrategyConfig parameterizes signal generation and order proposal
type StrategyConfig struct {
	LookbackLength  int     `json:"lookback_length"`  // rolling window size in ticks
	SignalThreshold float64 `json:"signal_threshold"` // strength magnitude to act on
	Deadband        float64 `json:"deadband"`         // hysteresis width below the threshold
	BaseQuantity    float64 `json:"base_quantity"`    // units per order before strength scaling
	PriceOffset     float64 `json:"price_offset"`     // limit offset from the touch; 0 means market orders
}

// RiskConfig parameterizes the risk gate
type RiskConfig struct {
	MaxPositionPerInstrument float64  `json:"max_position_per_instrument"` // absolute units
	MaxOrderNotional         float64  `json:"max_order_notional"`
	LossFloor                float64  `json:"loss_floor"` // session PnL floor, normally negative
	RateLimitWindow          Duration `json:"rate_limit_window"`
	RateLimitCount           int      `json:"rate_limit_count"`
	InitialCash              float64  `json:"initial_cash"`
}

// ExecutionConfig parameterizes the execution router
type ExecutionConfig struct {
	AckTimeout Duration `json:"ack_timeout"`
}

// JournalConfig locates the durable fill log
type JournalConfig struct {
	Path string `json:"path"`
}

// MonitoringConfig parameterizes the metrics and health endpoints
type MonitoringConfig struct {
	MetricsPort int `json:"metrics_port"`
	HealthPort  int `json:"health_port"`
}

// LoggingConfig parameterizes structured logging
type LoggingConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Load reads the configuration file, applies environment overrides for
// credentials, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Venue.Name == "" {
		c.Venue.Name = "sim"
	}
	if c.Venue.Category == "" {
		c.Venue.Category = "linear"
	}
	if c.Strategy.Deadband == 0 {
		c.Strategy.Deadband = c.Strategy.SignalThreshold * 0.25
	}
	if c.Risk.RateLimitWindow.Duration == 0 {
		c.Risk.RateLimitWindow.Duration = time.Minute
	}
	if c.Risk.RateLimitCount == 0 {
		c.Risk.RateLimitCount = 5
	}
	if c.Execution.AckTimeout.Duration == 0 {
		c.Execution.AckTimeout.Duration = 10 * time.Second
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/fills.jsonl"
	}
	if c.Monitoring.MetricsPort == 0 {
		c.Monitoring.MetricsPort = 8080
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8081
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// applyEnvOverrides pulls credentials from the environment so that
// secrets never live in the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		c.Venue.APIKey = v
	}
	if v := os.Getenv("VENUE_API_SECRET"); v != "" {
		c.Venue.APISecret = v
	}
	if v := os.Getenv("VENUE_NAME"); v != "" {
		c.Venue.Name = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate enforces the constraints the engine relies on. The engine
// treats a validated config as trustworthy everywhere else.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("symbol must not be empty")
		}
	}
	if c.Venue.Name != "sim" && c.Venue.Name != "bybit" {
		return fmt.Errorf("unknown venue %q", c.Venue.Name)
	}
	if c.Venue.Name == "bybit" && (c.Venue.APIKey == "" || c.Venue.APISecret == "") {
		return fmt.Errorf("bybit venue requires VENUE_API_KEY and VENUE_API_SECRET")
	}
	if c.Strategy.LookbackLength < 2 {
		return fmt.Errorf("lookback_length must be at least 2, got %d", c.Strategy.LookbackLength)
	}
	if c.Strategy.SignalThreshold <= 0 || c.Strategy.SignalThreshold > 1 {
		return fmt.Errorf("signal_threshold must be in (0, 1], got %.4f", c.Strategy.SignalThreshold)
	}
	if c.Strategy.Deadband < 0 || c.Strategy.Deadband >= c.Strategy.SignalThreshold {
		return fmt.Errorf("deadband must be in [0, signal_threshold), got %.4f", c.Strategy.Deadband)
	}
	if c.Strategy.BaseQuantity <= 0 {
		return fmt.Errorf("base_quantity must be positive, got %.8f", c.Strategy.BaseQuantity)
	}
	if c.Strategy.PriceOffset < 0 {
		return fmt.Errorf("price_offset must not be negative, got %.8f", c.Strategy.PriceOffset)
	}
	if c.Risk.MaxPositionPerInstrument <= 0 {
		return fmt.Errorf("max_position_per_instrument must be positive, got %.8f", c.Risk.MaxPositionPerInstrument)
	}
	if c.Risk.MaxOrderNotional <= 0 {
		return fmt.Errorf("max_order_notional must be positive, got %.2f", c.Risk.MaxOrderNotional)
	}
	if c.Risk.LossFloor > 0 {
		return fmt.Errorf("loss_floor must be zero or negative, got %.2f", c.Risk.LossFloor)
	}
	if c.Risk.RateLimitWindow.Duration <= 0 {
		return fmt.Errorf("rate_limit_window must be positive")
	}
	if c.Risk.RateLimitCount <= 0 {
		return fmt.Errorf("rate_limit_count must be positive, got %d", c.Risk.RateLimitCount)
	}
	if c.Risk.InitialCash < 0 {
		return fmt.Errorf("initial_cash must not be negative, got %.2f", c.Risk.InitialCash)
	}
	if c.Execution.AckTimeout.Duration <= 0 {
		return fmt.Errorf("ack_timeout must be positive")
	}
	return nil
}
