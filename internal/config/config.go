// Package config loads and validates service configuration from a YAML
// file plus MARKETD_* environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+USDT$`)

// Config is the full service configuration.
type Config struct {
	RedisURL string   `mapstructure:"redis_url"`
	Symbols  []string `mapstructure:"symbols"`
	LogLevel string   `mapstructure:"log_level"`

	ReportPeriodMs int `mapstructure:"report_period_ms"`
	SlowPeriodMs   int `mapstructure:"slow_period_ms"`

	// TickSize feeds volume profile binning.
	TickSize float64 `mapstructure:"tick_size"`

	Coordination Coordination `mapstructure:"coordination"`

	FeedURL     string `mapstructure:"feed_url"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Coordination covers multi-instance sharding settings.
type Coordination struct {
	Enabled             bool    `mapstructure:"enabled"`
	NodeID              string  `mapstructure:"node_id"`
	LeaseTTLMs          int     `mapstructure:"lease_ttl_ms"`
	MinHoldMs           int     `mapstructure:"min_hold_ms"`
	StickyPct           float64 `mapstructure:"sticky_pct"`
	KeyPrefix           string  `mapstructure:"key_prefix"`
	HeartbeatIntervalMs int     `mapstructure:"heartbeat_interval_ms"`
	RebalanceIntervalMs int     `mapstructure:"rebalance_interval_ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("log_level", "info")
	v.SetDefault("report_period_ms", 250)
	v.SetDefault("slow_period_ms", 2000)
	v.SetDefault("tick_size", 0.01)
	v.SetDefault("feed_url", "")
	v.SetDefault("metrics_addr", ":9101")

	v.SetDefault("coordination.enabled", false)
	v.SetDefault("coordination.node_id", "")
	v.SetDefault("coordination.lease_ttl_ms", 2000)
	v.SetDefault("coordination.min_hold_ms", 2000)
	v.SetDefault("coordination.sticky_pct", 0.02)
	v.SetDefault("coordination.key_prefix", "nt:")
	v.SetDefault("coordination.heartbeat_interval_ms", 1000)
	v.SetDefault("coordination.rebalance_interval_ms", 2500)
}

// Load reads configuration from the given file (optional) and the
// environment, fills in defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MARKETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Symbols may arrive comma-separated through the environment.
	if len(cfg.Symbols) == 1 && strings.Contains(cfg.Symbols[0], ",") {
		parts := strings.Split(cfg.Symbols[0], ",")
		cfg.Symbols = cfg.Symbols[:0]
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cfg.Symbols = append(cfg.Symbols, s)
			}
		}
	}

	if cfg.Coordination.NodeID == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Coordination.NodeID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
		} else {
			cfg.Coordination.NodeID = "marketd-" + uuid.NewString()[:8]
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the operational bounds the cycles depend on.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}
	for _, symbol := range c.Symbols {
		if !symbolPattern.MatchString(symbol) {
			return fmt.Errorf("symbol %q must match %s", symbol, symbolPattern)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	if c.ReportPeriodMs < 100 || c.ReportPeriodMs > 1000 {
		return fmt.Errorf("report_period_ms must be 100-1000, got %d", c.ReportPeriodMs)
	}
	if c.SlowPeriodMs < 1000 {
		return fmt.Errorf("slow_period_ms must be >= 1000, got %d", c.SlowPeriodMs)
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("tick_size must be positive, got %v", c.TickSize)
	}

	coord := c.Coordination
	if coord.LeaseTTLMs < 2*c.ReportPeriodMs {
		return fmt.Errorf("lease_ttl_ms must be >= 2x report_period_ms for safe renewal")
	}
	if coord.StickyPct < 0 || coord.StickyPct > 0.1 {
		return fmt.Errorf("sticky_pct must be within [0, 0.1], got %v", coord.StickyPct)
	}
	if coord.Enabled && coord.NodeID == "" {
		return fmt.Errorf("coordination.node_id is required when coordination is enabled")
	}
	return nil
}

// Mode reports the publish mode recorded in reports.
func (c *Config) Mode() string {
	if c.Coordination.Enabled {
		return "coordinated"
	}
	return "single"
}
