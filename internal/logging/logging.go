// Package logging builds the zerolog logger and the event helpers shared by
// the trading components.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
	// JSON writes raw JSON lines to the console instead of the pretty writer.
	JSON    bool
	Console bool
	// Out is the console destination. Stderr keeps stdout free for command output.
	Out        io.Writer
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		Out:        os.Stderr,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "spread-trader", "logs", "trader.log"),
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     90,
	}
}

// NewLoggerWithConfig builds a logger writing to the console, a rotated file,
// or both. A log directory that cannot be created disables the file writer.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	switch {
	case cfg.Console && cfg.JSON:
		writers = append(writers, out)
	case cfg.Console:
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    color.NoColor,
			TimeFormat: time.Kitchen,
		})
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(writer).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithSymbol tags entries with an underlying symbol.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOrderID tags entries with a broker order ID.
func WithOrderID(logger zerolog.Logger, orderID string) zerolog.Logger {
	return logger.With().Str("order_id", orderID).Logger()
}

// WithTrade tags entries with a ledger trade ID.
func WithTrade(logger zerolog.Logger, tradeID string) zerolog.Logger {
	return logger.With().Str("trade_id", tradeID).Logger()
}

// WithComponent tags entries with the component that wrote them.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithRunID tags every entry of a scheduled run with its ID.
func WithRunID(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// LogSpreadOrder logs a multi-leg spread order submission.
func LogSpreadOrder(logger zerolog.Logger, orderID, underlying, shortSymbol, longSymbol string, contracts int, limit float64) {
	logger.Info().
		Str("event", "spread_order").
		Str("order_id", orderID).
		Str("underlying", underlying).
		Str("short", shortSymbol).
		Str("long", longSymbol).
		Int("contracts", contracts).
		Float64("limit_price", limit).
		Msg("Spread order submitted")
}

// LogOrder logs an order status change.
func LogOrder(logger zerolog.Logger, orderID, symbol, side, status string) {
	logger.Info().
		Str("event", "order").
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Str("status", status).
		Msg("Order update")
}

// LogTradeClosed logs a closed trade with its realized P/L.
func LogTradeClosed(logger zerolog.Logger, tradeID, underlying, reason string, exitDebit, pnl float64) {
	logger.Info().
		Str("event", "trade_closed").
		Str("trade_id", tradeID).
		Str("underlying", underlying).
		Str("reason", reason).
		Float64("exit_debit", exitDebit).
		Float64("pnl", pnl).
		Msg("Trade closed")
}

// LogRiskState logs a non-normal risk evaluation.
func LogRiskState(logger zerolog.Logger, level string, multiplier float64, reason string) {
	logger.Warn().
		Str("event", "risk_state").
		Str("level", level).
		Float64("size_multiplier", multiplier).
		Str("reason", reason).
		Msg("Risk state changed")
}

// LogAPICall logs a broker API round trip at debug level.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)
	if err != nil {
		event.Err(err).Msg("API call failed")
		return
	}
	event.Msg("API call completed")
}
