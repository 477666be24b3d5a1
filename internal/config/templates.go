package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Spread Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
underlyings = ["SPY", "QQQ", "IWM"]
# Best spreads kept per underlying, and recommendations per scan
top_per_underlying = 2
max_recommendations = 3
# How long a recommendation can be approved
recommendation_ttl = "15m"
# Submit recommendations without waiting for approval
auto_approve = false
# IV observations needed before IV rank uses history instead of the VIX estimate
min_iv_history = 30
# Strike distance, as a fraction of spot, for the ATM IV contract
atm_band = 0.02
concurrency = 4
timezone = "America/New_York"
# Starting cash for paper mode
paper_balance = 100000.0

[screener]
min_dte = 30
max_dte = 45
min_delta = 0.20
max_delta = 0.30
min_iv_rank = 50.0
# Minimum credit as a fraction of width
min_credit_pct = 0.25
min_width = 1.0
max_width = 10.0
min_open_interest = 100
min_volume = 10
max_bid_ask_spread_pct = 0.10
risk_free_rate = 0.05

[risk]
# Loss versus day-start equity
daily_alert_pct = 0.01
daily_caution_pct = 0.015
daily_halt_pct = 0.02
daily_caution_size_mult = 0.5
# Loss versus week-start equity
weekly_caution_pct = 0.03
weekly_halt_pct = 0.05
weekly_caution_size_mult = 0.5
# Drawdown from peak equity
drawdown_critical_pct = 0.10
drawdown_halt_pct = 0.15
drawdown_critical_size_mult = 0.25
# Losses inside the window accumulate
rapid_loss_pct = 0.01
rapid_loss_window = "5m"
vix_elevated = 20.0
vix_caution = 30.0
vix_high = 40.0
vix_halt = 50.0
vix_elevated_size_mult = 0.8
vix_caution_size_mult = 0.5
vix_high_size_mult = 0.25
stale_data_after = "10s"
api_error_limit = 5
api_error_window = "60s"
# Position sizing
max_risk_per_trade_pct = 0.02
max_single_position_pct = 0.05
max_portfolio_heat_pct = 0.10
high_vix_reduction = 0.75

[validator]
max_price_drift_pct = 0.01
min_dte_for_entry = 21

[execution]
poll_interval = "30s"
fill_timeout = "15m"
cancel_on_timeout = true
# Close positions automatically when an exit triggers
auto_exit = false

# Each rung concedes step toward the market once after has elapsed
[[execution.ladder]]
after = "5m"
step = 0.02

[[execution.ladder]]
after = "10m"
step = 0.03

[[execution.ladder]]
after = "13m"
step = 0.02

[exit]
profit_target_pct = 0.50
stop_loss_pct = 2.0
time_exit_dte = 21

[schedule]
# Weekday times in the trading timezone used by "trader serve"
scan_times = ["10:35", "13:00", "15:30"]
eod_time = "16:15"
monitor_interval = "5m"
# How late a slot may still run after a restart
grace = "30m"

[api_breaker]
failure_threshold = 5
success_threshold = 2
cooldown = "30s"

[fill_alerts]
# Alert when a fill gave up more than this percent of the first limit
concession_alert_pct = 10.0
slow_fill_after = "2m"
window_size = 100

[storage]
# Defaults to trader.db and state.db in the config directory
# ledger_path = ""
# kv_path = ""
# KV backend for breaker and stats state: memory, sqlite, redis
kv_backend = "sqlite"

[storage.redis]
addr = "localhost:6379"
password = ""
db = 0
prefix = "spread-trader:"

[notifications]
enabled = true
# Notification level: all, trades_only, critical_only
level = "all"
terminal = true

[notifications.webhook]
enabled = false
url = ""
secret = ""
timeout = "10s"

[notifications.kafka]
enabled = false
brokers = []
topic = "spread-trader.alerts"
max_retries = 3

[server]
addr = ":8080"
# HMAC secret for mutating requests; leave empty to accept unsigned requests
secret = ""
# Mutating requests per second, and burst
rate_limit = 5.0
rate_burst = 10
# Background fill follow after an approve or close
follow_timeout = "20m"

[logging]
level = "info"
json = false
file = true
# Defaults to logs/trader.log in the config directory
# file_path = ""

[agents]
# Ask an LLM for a thesis and confidence before recommending
enabled = false
model = "gpt-4o"
base_url = ""
`

const credentialsTemplate = `# Spread Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[alpaca]
api_key = ""
secret_key = ""
option_feed = "indicative"

[openai]
api_key = ""
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

func writeTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
