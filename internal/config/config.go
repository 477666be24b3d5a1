// Package config provides configuration management for the trading application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"spread-trader/internal/analysis/screener"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/notify"
	"spread-trader/internal/resilience"
	"spread-trader/internal/risk"
	"spread-trader/internal/server"
	"spread-trader/internal/trading"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig                `mapstructure:"trading"`
	Screener      screener.Config              `mapstructure:"screener"`
	Risk          risk.Config                  `mapstructure:"risk"`
	Validator     risk.ValidatorConfig         `mapstructure:"validator"`
	Execution     trading.ExecutionConfig      `mapstructure:"execution"`
	Exit          trading.ExitConfig           `mapstructure:"exit"`
	Schedule      trading.ScheduleConfig       `mapstructure:"schedule"`
	APIBreaker    resilience.BreakerConfig     `mapstructure:"api_breaker"`
	FillAlerts    resilience.FillTrackerConfig `mapstructure:"fill_alerts"`
	Storage       StorageConfig                `mapstructure:"storage"`
	Notifications NotificationConfig           `mapstructure:"notifications"`
	Server        server.Config                `mapstructure:"server"`
	Logging       LoggingConfig                `mapstructure:"logging"`
	Agents        AgentConfig                  `mapstructure:"agents"`
	Credentials   Credentials                  `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode               string        `mapstructure:"mode"` // "live", "paper"
	Underlyings        []string      `mapstructure:"underlyings"`
	TopPerUnderlying   int           `mapstructure:"top_per_underlying"`
	MaxRecommendations int           `mapstructure:"max_recommendations"`
	RecommendationTTL  time.Duration `mapstructure:"recommendation_ttl"`
	AutoApprove        bool          `mapstructure:"auto_approve"`
	MinIVHistory       int           `mapstructure:"min_iv_history"`
	ATMBand            float64       `mapstructure:"atm_band"`
	Concurrency        int           `mapstructure:"concurrency"`
	Timezone           string        `mapstructure:"timezone"`
	PaperBalance       float64       `mapstructure:"paper_balance"`
}

// StorageConfig selects the ledger database and the KV backend.
type StorageConfig struct {
	LedgerPath string      `mapstructure:"ledger_path"`
	KVBackend  string      `mapstructure:"kv_backend"` // memory, sqlite, redis
	KVPath     string      `mapstructure:"kv_path"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the Redis KV connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool                 `mapstructure:"enabled"`
	Level    string               `mapstructure:"level"` // all, trades_only, critical_only
	Terminal bool                 `mapstructure:"terminal"`
	Webhook  notify.WebhookConfig `mapstructure:"webhook"`
	Kafka    notify.KafkaConfig   `mapstructure:"kafka"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	JSON     bool   `mapstructure:"json"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// AgentConfig holds AI analyst configuration.
type AgentConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Credentials holds API credentials.
type Credentials struct {
	Alpaca AlpacaCredentials `mapstructure:"alpaca"`
	OpenAI OpenAICredentials `mapstructure:"openai"`
}

// AlpacaCredentials holds Alpaca API credentials.
type AlpacaCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	// OptionFeed is "indicative" (free) or "opra".
	OptionFeed string `mapstructure:"option_feed"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/spread-trader"
	}
	return filepath.Join(home, ".config", "spread-trader")
}

// Default returns the documented defaults. Paths are relative to configDir.
func Default(configDir string) *Config {
	pipeline := trading.DefaultPipelineConfig()
	return &Config{
		Trading: TradingConfig{
			Mode:               "paper",
			Underlyings:        pipeline.Underlyings,
			TopPerUnderlying:   pipeline.TopPerUnderlying,
			MaxRecommendations: pipeline.MaxRecommendations,
			RecommendationTTL:  pipeline.RecommendationTTL,
			MinIVHistory:       pipeline.MinIVHistory,
			ATMBand:            pipeline.ATMBand,
			Concurrency:        pipeline.Concurrency,
			Timezone:           "America/New_York",
			PaperBalance:       100000,
		},
		Screener:   screener.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Validator:  risk.DefaultValidatorConfig(),
		Execution:  trading.DefaultExecutionConfig(),
		Exit:       trading.DefaultExitConfig(),
		Schedule:   trading.DefaultScheduleConfig(),
		APIBreaker: resilience.DefaultBreakerConfig(),
		FillAlerts: resilience.DefaultFillTrackerConfig(),
		Storage: StorageConfig{
			LedgerPath: filepath.Join(configDir, "trader.db"),
			KVBackend:  "sqlite",
			KVPath:     filepath.Join(configDir, "state.db"),
			Redis:      RedisConfig{Addr: "localhost:6379", Prefix: "spread-trader:"},
		},
		Notifications: NotificationConfig{
			Enabled:  true,
			Level:    string(notify.LevelAll),
			Terminal: true,
			Kafka:    notify.KafkaConfig{Topic: "spread-trader.alerts"},
		},
		Server: server.DefaultConfig(),
		Logging: LoggingConfig{
			Level:    "info",
			File:     true,
			FilePath: filepath.Join(configDir, "logs", "trader.log"),
		},
		Agents: AgentConfig{Model: "gpt-4o"},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default(configDir)

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// .env values never override variables already set in the environment.
	if err := loadDotEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	// Lists in the file replace the defaults instead of merging into them.
	if v.IsSet("trading.underlyings") {
		target.Trading.Underlyings = nil
	}
	if v.IsSet("execution.ladder") {
		target.Execution.Ladder = nil
	}
	if v.IsSet("schedule.scan_times") {
		target.Schedule.ScanTimes = nil
	}
	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Paper trading runs without credentials.
			return writeTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func loadDotEnv(configDir string) error {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Alpaca credentials
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Credentials.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		cfg.Credentials.Alpaca.SecretKey = v
	}

	// OpenAI credentials
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}

	// Trading mode
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}

	// Storage
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}

	// Notifications
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Notifications.Webhook.Secret = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Notifications.Kafka.Brokers = strings.Split(v, ",")
		cfg.Notifications.Kafka.Enabled = true
	}

	if v := os.Getenv("SERVER_SECRET"); v != "" {
		cfg.Server.Secret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate trading mode
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return invalid("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	if len(c.Trading.Underlyings) == 0 {
		return invalid("trading.underlyings must not be empty")
	}
	if c.Trading.RecommendationTTL <= 0 {
		return invalid("trading.recommendation_ttl must be positive")
	}
	if _, err := time.LoadLocation(c.Trading.Timezone); err != nil {
		return invalid("trading.timezone %q: %v", c.Trading.Timezone, err)
	}
	if !c.IsPaperMode() && (c.Credentials.Alpaca.APIKey == "" || c.Credentials.Alpaca.SecretKey == "") {
		return invalid("live mode requires alpaca api_key and secret_key")
	}

	// Validate screener
	s := c.Screener
	if s.MinDTE < 0 || s.MinDTE > s.MaxDTE {
		return invalid("screener DTE window [%d, %d] is invalid", s.MinDTE, s.MaxDTE)
	}
	if s.MinDelta < 0 || s.MinDelta > s.MaxDelta || s.MaxDelta > 1 {
		return invalid("screener delta window [%.2f, %.2f] is invalid", s.MinDelta, s.MaxDelta)
	}
	if s.MinWidth <= 0 || s.MinWidth > s.MaxWidth {
		return invalid("screener width window [%.2f, %.2f] is invalid", s.MinWidth, s.MaxWidth)
	}

	// Validate risk parameters
	r := c.Risk
	if !ascending(r.DailyAlertPct, r.DailyCautionPct, r.DailyHaltPct) {
		return invalid("risk daily thresholds must satisfy 0 < alert <= caution <= halt")
	}
	if !ascending(r.WeeklyCautionPct, r.WeeklyHaltPct) {
		return invalid("risk weekly thresholds must satisfy 0 < caution <= halt")
	}
	if !ascending(r.DrawdownCriticalPct, r.DrawdownHaltPct) {
		return invalid("risk drawdown thresholds must satisfy 0 < critical <= halt")
	}
	if !ascending(r.VIXElevated, r.VIXCaution, r.VIXHigh, r.VIXHalt) {
		return invalid("risk VIX thresholds must be ascending")
	}
	for name, pct := range map[string]float64{
		"max_risk_per_trade_pct":   r.MaxRiskPerTradePct,
		"max_single_position_pct":  r.MaxSinglePositionPct,
		"max_portfolio_heat_pct":   r.MaxPortfolioHeatPct,
		"high_vix_reduction":       r.HighVIXReduction,
		"daily_caution_size_mult":  r.DailyCautionSizeMult,
		"weekly_caution_size_mult": r.WeeklyCautionSizeMult,
	} {
		if pct <= 0 || pct > 1 {
			return invalid("risk.%s must be in (0, 1]", name)
		}
	}
	if r.StaleDataAfter <= 0 || r.APIErrorLimit <= 0 {
		return invalid("risk stale_data_after and api_error_limit must be positive")
	}

	// Validate execution
	e := c.Execution
	if e.PollInterval <= 0 || e.FillTimeout < e.PollInterval {
		return invalid("execution requires 0 < poll_interval <= fill_timeout")
	}
	var last time.Duration
	for i, step := range e.Ladder {
		if step.Step <= 0 || step.After < last || step.After > e.FillTimeout {
			return invalid("execution.ladder[%d] must have a positive step and an ascending offset within the timeout", i)
		}
		last = step.After
	}

	if c.FillAlerts.ConcessionAlertPct < 0 || c.FillAlerts.SlowFillAfter < 0 || c.FillAlerts.WindowSize <= 0 {
		return invalid("fill_alerts thresholds must be non-negative and window_size positive")
	}

	// Validate exits
	if c.Exit.ProfitTargetPct <= 0 || c.Exit.ProfitTargetPct > 1 {
		return invalid("exit.profit_target_pct must be in (0, 1]")
	}
	if c.Exit.StopLossPct <= 0 || c.Exit.TimeExitDTE < 0 {
		return invalid("exit.stop_loss_pct must be positive and exit.time_exit_dte non-negative")
	}

	if err := c.Schedule.Validate(); err != nil {
		return invalid("schedule: %v", err)
	}

	// Validate storage
	switch c.Storage.KVBackend {
	case "memory", "sqlite":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return invalid("storage.redis.addr is required for the redis backend")
		}
	default:
		return invalid("storage.kv_backend must be memory, sqlite or redis, got %q", c.Storage.KVBackend)
	}

	// Validate notifications
	switch notify.NotificationLevel(c.Notifications.Level) {
	case notify.LevelAll, notify.LevelTradesOnly, notify.LevelCriticalOnly:
	default:
		return invalid("notifications.level must be all, trades_only or critical_only")
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return invalid("notifications.webhook.url is required when the webhook is enabled")
	}
	if c.Notifications.Kafka.Enabled && (len(c.Notifications.Kafka.Brokers) == 0 || c.Notifications.Kafka.Topic == "") {
		return invalid("notifications.kafka needs brokers and a topic when enabled")
	}

	if c.Server.Addr == "" || c.Server.RateLimit < 0 || c.Server.FollowTimeout < c.Execution.FillTimeout {
		return invalid("server needs an addr, a non-negative rate_limit and follow_timeout >= execution.fill_timeout")
	}

	if c.Agents.Enabled && c.Credentials.OpenAI.APIKey == "" {
		return invalid("agents require an openai api_key")
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// Location returns the trading timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Trading.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Pipeline returns the scan settings.
func (c *Config) Pipeline() trading.PipelineConfig {
	return trading.PipelineConfig{
		Underlyings:        c.Trading.Underlyings,
		TopPerUnderlying:   c.Trading.TopPerUnderlying,
		MaxRecommendations: c.Trading.MaxRecommendations,
		RecommendationTTL:  c.Trading.RecommendationTTL,
		AutoApprove:        c.Trading.AutoApprove,
		MinIVHistory:       c.Trading.MinIVHistory,
		ATMBand:            c.Trading.ATMBand,
		Concurrency:        c.Trading.Concurrency,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.JSON = c.Logging.JSON
	lc.File = c.Logging.File
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	return lc
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// ascending reports whether the values are positive and non-decreasing.
func ascending(values ...float64) bool {
	prev := 0.0
	for _, v := range values {
		if v <= 0 || v < prev {
			return false
		}
		prev = v
	}
	return true
}
