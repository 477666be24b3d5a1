package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"spread-trader/internal/agents"
	"spread-trader/internal/analysis/screener"
	"spread-trader/internal/broker"
	"spread-trader/internal/config"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/resilience"
	"spread-trader/internal/risk"
	"spread-trader/internal/server"
	"spread-trader/internal/store"
	"spread-trader/internal/trading"
)

// App holds the application dependencies. Components are built on first use
// so that version and config commands work without a database or broker.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Ledger      store.Ledger
	KV          store.KV
	Metrics     *metrics.Metrics
	Notifier    notify.Notifier
	Broker      broker.Broker
	APIBreakers *resilience.Registry
	Stats       *risk.StatsBook
	Breaker     *risk.CircuitBreaker
	Sizer       *risk.PositionSizer
	Freshness   *store.FreshnessTracker
	Fills       *resilience.FillTracker
	Coordinator *trading.Coordinator
	Approvals   *trading.Approvals
	Pipeline    *trading.Pipeline
	Monitor     *trading.Monitor
	EOD         *trading.EODSummary
	Health      *resilience.HealthMonitor

	closers []io.Closer
	built   bool
}

// Build wires every component from the configuration.
func (app *App) Build(ctx context.Context) error {
	if app.built {
		return nil
	}
	cfg := app.Config
	logger := app.Logger

	if err := app.openStorage(ctx); err != nil {
		app.Close()
		return err
	}

	app.Metrics = metrics.New()
	app.Notifier = app.buildNotifier()

	app.Stats = risk.NewStatsBook(app.KV, cfg.Risk, cfg.Location())
	app.Breaker = risk.NewCircuitBreaker(cfg.Risk, app.KV, app.Stats, logger)
	app.Breaker.OnTrip(func(ctx context.Context, st models.CircuitBreakerStatus) {
		if err := app.Notifier.Send(ctx, notify.CircuitBreakerTripped(st)); err != nil {
			logger.Warn().Err(err).Msg("Failed to send halt notification")
		}
	})
	app.Sizer = risk.NewPositionSizer(cfg.Risk)
	app.Freshness = store.NewFreshnessTracker()

	app.APIBreakers = resilience.NewRegistry(cfg.APIBreaker)
	app.Broker = resilience.NewGuardedBroker(app.buildBroker(), app.APIBreakers, app.Stats, app.Metrics, logger)

	analyst := app.buildAnalyst()

	app.Fills = resilience.NewFillTracker(cfg.FillAlerts)
	app.Fills.OnAlert(func(a resilience.FillAlert) {
		logger.Warn().Str("alert", string(a.Type)).Str("order_id", a.OrderID).Msg(a.Message)
		if err := app.Notifier.Send(context.Background(), notify.FillQualityAlert(string(a.Type), a.Underlying, a.OrderID, a.Message)); err != nil {
			logger.Warn().Err(err).Msg("Failed to send fill quality alert")
		}
	})
	app.Coordinator = trading.NewCoordinator(app.Broker, app.Ledger, app.Stats, app.Notifier, app.Metrics, cfg.Execution, logger).
		WithFillTracker(app.Fills)
	app.Approvals = trading.NewApprovals(app.Coordinator, app.Ledger, app.Breaker,
		risk.NewTradeValidator(cfg.Validator), app.Broker, logger)
	app.Pipeline = trading.NewPipeline(trading.PipelineDeps{
		Broker:    app.Broker,
		Ledger:    app.Ledger,
		Breaker:   app.Breaker,
		Sizer:     app.Sizer,
		Screener:  screener.New(cfg.Screener, logger),
		Analyst:   analyst,
		Approvals: app.Approvals,
		Notifier:  app.Notifier,
		Metrics:   app.Metrics,
		Freshness: app.Freshness,
	}, cfg.Pipeline(), logger)
	app.Monitor = trading.NewMonitor(app.Broker, app.Ledger, app.Breaker, app.Sizer, app.Coordinator,
		trading.NewExitValidator(cfg.Exit), app.Metrics, app.Freshness, logger)
	app.EOD = trading.NewEODSummary(app.Broker, app.Ledger, app.Stats, analyst, app.KV, app.Notifier, cfg.Location(), logger)

	app.Health = app.buildHealth()
	app.built = true
	return nil
}

func (app *App) openStorage(ctx context.Context) error {
	sc := app.Config.Storage

	if err := os.MkdirAll(filepath.Dir(sc.LedgerPath), 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}
	ledger, err := store.NewSQLiteStore(sc.LedgerPath)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	app.Ledger = ledger
	app.closers = append(app.closers, ledger)

	switch sc.KVBackend {
	case "memory":
		app.KV = store.NewMemoryKV()
	case "redis":
		kv, err := store.NewRedisKV(ctx, sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, sc.Redis.Prefix)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		app.KV = kv
		app.closers = append(app.closers, kv)
	default:
		if err := os.MkdirAll(filepath.Dir(sc.KVPath), 0o755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
		kv, err := store.NewSQLiteKV(sc.KVPath)
		if err != nil {
			return fmt.Errorf("opening state store: %w", err)
		}
		app.KV = kv
		app.closers = append(app.closers, kv)
	}
	app.Logger.Debug().Str("ledger", sc.LedgerPath).Str("kv", sc.KVBackend).Msg("Storage opened")
	return nil
}

func (app *App) buildNotifier() notify.Notifier {
	nc := app.Config.Notifications
	if !nc.Enabled {
		return notify.Nop{}
	}
	mn := notify.NewMultiNotifier(notify.NotificationLevel(nc.Level), app.Metrics, app.Logger)
	if nc.Terminal {
		// stderr keeps --json output on stdout parseable.
		mn.AddChannel(notify.NewTerminalNotifier(os.Stderr, !color.NoColor))
	}
	if nc.Webhook.Enabled {
		mn.AddChannel(notify.NewWebhookNotifier(nc.Webhook))
	}
	if nc.Kafka.Enabled {
		k := notify.NewKafkaNotifier(nc.Kafka)
		mn.AddChannel(k)
		app.closers = append(app.closers, k)
	}
	app.Logger.Debug().Strs("channels", mn.Channels()).Msg("Notifier initialized")
	return mn
}

func (app *App) buildBroker() broker.Broker {
	cfg := app.Config
	creds := cfg.Credentials.Alpaca

	var alpaca *broker.AlpacaBroker
	if creds.APIKey != "" {
		alpaca = broker.NewAlpacaBroker(broker.AlpacaConfig{
			APIKey:     creds.APIKey,
			SecretKey:  creds.SecretKey,
			Paper:      cfg.IsPaperMode(),
			OptionFeed: creds.OptionFeed,
		}, app.Logger)
	}

	if !cfg.IsPaperMode() {
		app.Logger.Info().Msg("Live trading through Alpaca")
		return alpaca
	}

	paperCfg := broker.PaperBrokerConfig{InitialBalance: cfg.Trading.PaperBalance}
	if alpaca != nil {
		paperCfg.DataSource = alpaca
		paperCfg.VIXSource = alpaca
	} else {
		app.Logger.Warn().Msg("No Alpaca credentials; paper broker has no market data")
	}
	return broker.NewPaperBroker(paperCfg)
}

func (app *App) buildAnalyst() agents.Analyst {
	ac := app.Config.Agents
	if !ac.Enabled {
		return agents.RulesAnalyst{}
	}
	llm := agents.NewOpenAIClient(app.Config.Credentials.OpenAI.APIKey, ac.Model, ac.BaseURL)
	app.Logger.Debug().Str("model", ac.Model).Msg("LLM analyst initialized")
	return agents.NewFallbackAnalyst(agents.NewLLMAnalyst(llm, app.Logger), agents.RulesAnalyst{}, app.Logger)
}

func (app *App) buildHealth() *resilience.HealthMonitor {
	hm := resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig(), app.Logger)
	hm.RegisterComponent("trading", resilience.TradingHaltCheck(app.Breaker.Status))
	hm.RegisterComponent("quotes", resilience.QuoteFreshnessCheck(app.Freshness, app.Config.Risk.StaleDataAfter, time.Now))
	hm.RegisterComponent("broker_api", resilience.APIBreakersCheck(app.APIBreakers))
	if p, ok := app.Ledger.(store.Pinger); ok {
		hm.RegisterComponent("ledger", resilience.DatabaseHealthCheck(p.Ping))
	}
	if p, ok := app.KV.(store.Pinger); ok {
		hm.RegisterComponent("state", resilience.DatabaseHealthCheck(p.Ping))
	}
	hm.SetAlertCallback(func(alert resilience.HealthAlert) {
		err := fmt.Errorf("%s is %s: %s", alert.Component, alert.Status, alert.Message)
		if sendErr := app.Notifier.Send(context.Background(), notify.Error(err, "health")); sendErr != nil {
			app.Logger.Warn().Err(sendErr).Msg("Failed to send health alert")
		}
	})
	return hm
}

// ServerDeps returns the collaborators of the HTTP server.
func (app *App) ServerDeps() server.Deps {
	return server.Deps{
		Approvals:   app.Approvals,
		Ledger:      app.Ledger,
		Breaker:     app.Breaker,
		APIBreakers: app.APIBreakers,
		Fills:       app.Fills,
		Health:      app.Health,
		Metrics:     app.Metrics,
	}
}

// Close releases storage and notifier connections.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	app.built = false
	return errors.Join(errs...)
}
