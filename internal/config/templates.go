package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Backtester Configuration

[engine]
# Underlying index: nifty, banknifty, finnifty, sensex
index = "nifty"
# Strike grid step for the index
strike_base = 50.0
# Initial entry time (HH:MM)
entry_time = "09:20"
# Forced square-off time (HH:MM)
exit_time = "15:10"
# Session bounds (HH:MM)
session_start = "09:15"
session_end = "15:29"
# Lots per leg
lot_multiplier = 1
# OHLC column entry fills price at: "Open", "High", "Low" or "Close"
entry_mode = "Close"
# Stop loss check basis: "Extreme" (High/Low) or "Close"
stop_check_on = "Extreme"
# Target check basis: "Extreme" or "Close"
target_check_on = "Extreme"
# Abort the day when total PnL drops below this (0 disables)
day_loss_breaker = 0.0
# Exit positions on spot/VWAP crossover
vwap_exit = false
# Exit when spot moves this many points from the entry spot (0 disables)
spot_move_exit = 0.0

[data]
# ClickHouse DSN, e.g. "clickhouse://default:@localhost:9000/market"
clickhouse_dsn = ""
options_table = "index_options"
spot_table = "index_spot"
vix_ticker = "INDIAVIX"
# Local SQLite month cache
cache_dir = ""
cache_enabled = true

[charges]
# Flat brokerage per executed order, INR
brokerage_per_order = 20.0
# Exchange transaction charge, fraction of turnover
exchange_txn_rate = 0.00035
# SEBI turnover fee, fraction of turnover
sebi_rate = 0.000001
# GST on brokerage + transaction + SEBI charges
gst_rate = 0.18
# STT on sell-side premium value
stt_rate = 0.000625
# Stamp duty on buy-side premium value
stamp_rate = 0.00003
# Slippage per fill, percent of price
slippage_percent = 0.0

[output]
results_dir = "results"
legs_dir = "legs"
`

const lotSizesTemplate = `# Contract lot sizes by index and date range.
# An empty "to" means the rule is still in force.

nifty:
  - from: "2021-01-01"
    to: "2024-04-25"
    size: 50
  - from: "2024-04-26"
    to: "2024-11-19"
    size: 25
  - from: "2024-11-20"
    to: ""
    size: 75

banknifty:
  - from: "2021-01-01"
    to: "2023-06-30"
    size: 25
  - from: "2023-07-01"
    to: "2024-11-19"
    size: 15
  - from: "2024-11-20"
    to: ""
    size: 30

finnifty:
  - from: "2021-01-11"
    to: "2024-11-19"
    size: 40
  - from: "2024-11-20"
    to: ""
    size: 65

sensex:
  - from: "2023-04-01"
    to: "2024-11-19"
    size: 10
  - from: "2024-11-20"
    to: ""
    size: 20
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateLotSizes(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "lotsizes.yaml")
	if err := os.WriteFile(path, []byte(lotSizesTemplate), 0644); err != nil {
		return fmt.Errorf("writing lot size template: %w", err)
	}

	return fmt.Errorf("lot size file not found, created template at %s", path)
}
