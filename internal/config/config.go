// Package config provides configuration management for the backtesting engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig  `mapstructure:"engine"`
	Data     DataConfig    `mapstructure:"data"`
	Charges  ChargesConfig `mapstructure:"charges"`
	Output   OutputConfig  `mapstructure:"output"`
	LotSizes LotSizeRules  `mapstructure:"-"` // Loaded separately
}

// EngineConfig holds simulation parameters shared by every leg.
type EngineConfig struct {
	Index          string  `mapstructure:"index"`            // nifty, banknifty, finnifty, sensex
	StrikeBase     float64 `mapstructure:"strike_base"`      // strike grid step, e.g. 50 for nifty
	EntryTime      string  `mapstructure:"entry_time"`       // HH:MM initial entry
	ExitTime       string  `mapstructure:"exit_time"`        // HH:MM forced square-off
	SessionStart   string  `mapstructure:"session_start"`    // HH:MM first bar
	SessionEnd     string  `mapstructure:"session_end"`      // HH:MM last bar
	LotMultiplier  int     `mapstructure:"lot_multiplier"`   // lots per leg
	EntryMode      string  `mapstructure:"entry_mode"`       // OHLC column fills price at, default "Close"
	StopCheckOn    string  `mapstructure:"stop_check_on"`    // "Extreme" uses High/Low, "Close" uses close
	TargetCheckOn  string  `mapstructure:"target_check_on"`  // same choices as stop_check_on
	DayLossBreaker float64 `mapstructure:"day_loss_breaker"` // abort day when total PnL breaches, 0 disables
	VWAPExit       bool    `mapstructure:"vwap_exit"`        // exit on spot/VWAP crossover
	SpotMoveExit   float64 `mapstructure:"spot_move_exit"`   // exit when spot moves this far from entry, 0 disables
}

// DataConfig holds market data source configuration.
type DataConfig struct {
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	OptionsTable  string `mapstructure:"options_table"`
	SpotTable     string `mapstructure:"spot_table"`
	VIXTicker     string `mapstructure:"vix_ticker"`
	CacheDir      string `mapstructure:"cache_dir"`
	CacheEnabled  bool   `mapstructure:"cache_enabled"`
}

// ChargesConfig holds transaction cost rates. Rates are fractions of
// turnover unless stated otherwise.
type ChargesConfig struct {
	BrokeragePerOrder float64 `mapstructure:"brokerage_per_order"` // flat, INR
	ExchangeTxnRate   float64 `mapstructure:"exchange_txn_rate"`
	SEBIRate          float64 `mapstructure:"sebi_rate"`
	GSTRate           float64 `mapstructure:"gst_rate"`
	STTRate           float64 `mapstructure:"stt_rate"`   // on sell value
	StampRate         float64 `mapstructure:"stamp_rate"` // on buy value
	SlippagePercent   float64 `mapstructure:"slippage_percent"`
}

// OutputConfig holds result file locations.
type OutputConfig struct {
	ResultsDir string `mapstructure:"results_dir"`
	LegsDir    string `mapstructure:"legs_dir"`
}

// LotSizeRule is one date range of an index's contract lot size.
type LotSizeRule struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
	Size int    `mapstructure:"size"`
}

// LotSizeRules maps index name to its dated lot size schedule.
type LotSizeRules map[string][]LotSizeRule

// LotSize resolves the contract lot size for an index on a trade date.
func (r LotSizeRules) LotSize(index string, day time.Time) (int, error) {
	rules, ok := r[strings.ToLower(index)]
	if !ok {
		return 0, fmt.Errorf("no lot size schedule for index %q", index)
	}
	for _, rule := range rules {
		from, err := time.Parse("2006-01-02", rule.From)
		if err != nil {
			return 0, fmt.Errorf("bad lot size rule for %s: %w", index, err)
		}
		if day.Before(from) {
			continue
		}
		if rule.To != "" {
			to, err := time.Parse("2006-01-02", rule.To)
			if err != nil {
				return 0, fmt.Errorf("bad lot size rule for %s: %w", index, err)
			}
			if day.After(to) {
				continue
			}
		}
		return rule.Size, nil
	}
	return 0, fmt.Errorf("no lot size defined for %s on %s", index, day.Format("2006-01-02"))
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-backtester"
	}
	return filepath.Join(home, ".config", "options-backtester")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load lot size schedule
	if err := loadLotSizes(configDir, &cfg.LotSizes); err != nil {
		return nil, fmt.Errorf("loading lotsizes.yaml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setEngineDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setEngineDefaults(v *viper.Viper) {
	v.SetDefault("engine.index", "nifty")
	v.SetDefault("engine.strike_base", 50.0)
	v.SetDefault("engine.entry_time", "09:20")
	v.SetDefault("engine.exit_time", "15:10")
	v.SetDefault("engine.session_start", "09:15")
	v.SetDefault("engine.session_end", "15:29")
	v.SetDefault("engine.lot_multiplier", 1)
	v.SetDefault("engine.entry_mode", "Close")
	v.SetDefault("engine.stop_check_on", "Extreme")
	v.SetDefault("engine.target_check_on", "Extreme")
	v.SetDefault("engine.vwap_exit", false)
	v.SetDefault("engine.spot_move_exit", 0.0)
	v.SetDefault("data.options_table", "index_options")
	v.SetDefault("data.spot_table", "index_spot")
	v.SetDefault("data.vix_ticker", "INDIAVIX")
	v.SetDefault("data.cache_enabled", true)
	v.SetDefault("charges.brokerage_per_order", 20.0)
	v.SetDefault("charges.exchange_txn_rate", 0.00035)
	v.SetDefault("charges.sebi_rate", 0.000001)
	v.SetDefault("charges.gst_rate", 0.18)
	v.SetDefault("charges.stt_rate", 0.000625)
	v.SetDefault("charges.stamp_rate", 0.00003)
	v.SetDefault("charges.slippage_percent", 0.0)
	v.SetDefault("output.results_dir", "results")
	v.SetDefault("output.legs_dir", "legs")
}

func loadLotSizes(configDir string, rules *LotSizeRules) error {
	v := viper.New()
	v.SetConfigName("lotsizes")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateLotSizes(configDir)
		}
		return err
	}

	return v.Unmarshal(rules)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Data.ClickHouseDSN = v
	}
	if v := os.Getenv("BACKTEST_RESULTS_DIR"); v != "" {
		cfg.Output.ResultsDir = v
	}
	if v := os.Getenv("BACKTEST_CACHE_DIR"); v != "" {
		cfg.Data.CacheDir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, tc := range []struct {
		name, value string
	}{
		{"entry_time", c.Engine.EntryTime},
		{"exit_time", c.Engine.ExitTime},
		{"session_start", c.Engine.SessionStart},
		{"session_end", c.Engine.SessionEnd},
	} {
		if _, err := time.Parse("15:04", tc.value); err != nil {
			return fmt.Errorf("invalid %s %q: expected HH:MM", tc.name, tc.value)
		}
	}

	if c.Engine.StrikeBase <= 0 {
		return fmt.Errorf("strike_base must be positive")
	}
	if c.Engine.LotMultiplier <= 0 {
		return fmt.Errorf("lot_multiplier must be positive")
	}
	// Empty entry_mode means Close.
	switch strings.ToUpper(c.Engine.EntryMode) {
	case "", "OPEN", "HIGH", "LOW", "CLOSE":
	default:
		return fmt.Errorf("entry_mode must be one of Open, High, Low, Close")
	}
	if c.Engine.StopCheckOn != "Extreme" && c.Engine.StopCheckOn != "Close" {
		return fmt.Errorf("stop_check_on must be 'Extreme' or 'Close'")
	}
	if c.Engine.TargetCheckOn != "Extreme" && c.Engine.TargetCheckOn != "Close" {
		return fmt.Errorf("target_check_on must be 'Extreme' or 'Close'")
	}
	for name, rate := range map[string]float64{
		"brokerage_per_order": c.Charges.BrokeragePerOrder,
		"exchange_txn_rate":   c.Charges.ExchangeTxnRate,
		"sebi_rate":           c.Charges.SEBIRate,
		"gst_rate":            c.Charges.GSTRate,
		"stt_rate":            c.Charges.STTRate,
		"stamp_rate":          c.Charges.StampRate,
		"slippage_percent":    c.Charges.SlippagePercent,
	} {
		if rate < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}

	return nil
}
