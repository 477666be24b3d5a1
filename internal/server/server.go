// Package server exposes the approval and operations API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spread-trader/internal/logging"
	"spread-trader/internal/metrics"
	"spread-trader/internal/resilience"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
	"spread-trader/internal/trading"
)

// Config holds the HTTP dispatcher settings.
type Config struct {
	Addr string `mapstructure:"addr"`
	// Secret, when set, is required as an HMAC signature on mutating requests.
	Secret string `mapstructure:"secret"`
	// RateLimit is the sustained rate of mutating requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	// FollowTimeout bounds the background fill follow after an approve or close.
	FollowTimeout time.Duration `mapstructure:"follow_timeout"`
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		RateLimit:     5,
		RateBurst:     10,
		FollowTimeout: 20 * time.Minute,
	}
}

// Deps are the collaborators the handlers drive.
type Deps struct {
	Approvals   *trading.Approvals
	Ledger      store.Ledger
	Breaker     *risk.CircuitBreaker
	APIBreakers *resilience.Registry
	Fills       *resilience.FillTracker
	Health      *resilience.HealthMonitor
	Metrics     *metrics.Metrics
}

// Server routes operator requests to the trading components.
type Server struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
	logger zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing sync.Map
}

// New builds the router. Background fill follows run until Shutdown.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	logger = logging.WithComponent(logger, "server")
	if deps.Health == nil {
		deps.Health = resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig(), logger)
	}
	if cfg.FollowTimeout <= 0 {
		cfg.FollowTimeout = DefaultConfig().FollowTimeout
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		engine:  engine,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.health)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.engine.Group("/api/v1")
	api.GET("/recommendations", s.listRecommendations)
	api.GET("/trades", s.listTrades)
	api.GET("/trades/:id", s.getTrade)
	api.GET("/breaker", s.breakerStatus)
	api.GET("/fills", s.fillQuality)

	var guards []gin.HandlerFunc
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		guards = append(guards, RateLimit(rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)))
	}
	if s.cfg.Secret != "" {
		guards = append(guards, VerifySignature([]byte(s.cfg.Secret)))
	} else {
		s.logger.Warn().Msg("Server secret not set; mutating requests are unauthenticated")
	}

	writes := api.Group("", guards...)
	writes.POST("/recommendations/:id/approve", s.approve)
	writes.POST("/recommendations/:id/reject", s.reject)
	writes.POST("/trades/:id/close", s.closeTrade)
	writes.POST("/breaker/trip", s.tripBreaker)
	writes.POST("/breaker/reset", s.resetBreaker)
	writes.POST("/breaker/api/reset", s.resetAPIBreakers)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.Shutdown()
		if ok {
			return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Shutdown cancels background fill follows and waits for them to stop.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background fill follow has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// background runs fn with a context bounded by FollowTimeout.
func (s *Server) background(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Str("task", name).Msg("Background task panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.FollowTimeout)
		defer cancel()
		fn(ctx)
	}()
}
