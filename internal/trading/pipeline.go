package trading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spread-trader/internal/agents"
	"spread-trader/internal/analysis/greeks"
	"spread-trader/internal/analysis/screener"
	"spread-trader/internal/analysis/volatility"
	"spread-trader/internal/broker"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
	"spread-trader/pkg/utils"
)

// defaultATMIV is used when no near-the-money contract carries an IV.
const defaultATMIV = 0.20

// ScanResult summarises one scan run.
type ScanResult struct {
	RunID           string                  `json:"run_id"`
	StartedAt       time.Time               `json:"started_at"`
	Skipped         string                  `json:"skipped,omitempty"`
	RiskState       models.RiskState        `json:"risk_state"`
	Scanned         []string                `json:"scanned"`
	Failed          map[string]string       `json:"failed,omitempty"`
	Candidates      int                     `json:"candidates"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Trades          []models.Trade          `json:"trades,omitempty"`
}

// candidate is a screened spread with the context it was found in.
type candidate struct {
	scored  models.ScoredSpread
	price   float64
	metrics volatility.Metrics
}

// Pipeline scans underlyings for credit spreads and turns the best into
// recommendations.
type Pipeline struct {
	broker    broker.Broker
	ledger    store.Ledger
	breaker   *risk.CircuitBreaker
	sizer     *risk.PositionSizer
	screener  *screener.Screener
	analyst   agents.Analyst
	approvals *Approvals
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	freshness *store.FreshnessTracker
	history   *volatility.History
	cfg       PipelineConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// PipelineDeps are the collaborators of a Pipeline. Analyst, Approvals,
// Notifier, Metrics and Freshness are optional.
type PipelineDeps struct {
	Broker    broker.Broker
	Ledger    store.Ledger
	Breaker   *risk.CircuitBreaker
	Sizer     *risk.PositionSizer
	Screener  *screener.Screener
	Analyst   agents.Analyst
	Approvals *Approvals
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Freshness *store.FreshnessTracker
}

// NewPipeline creates a scan pipeline.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Freshness == nil {
		deps.Freshness = store.NewFreshnessTracker()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		broker:    deps.Broker,
		ledger:    deps.Ledger,
		breaker:   deps.Breaker,
		sizer:     deps.Sizer,
		screener:  deps.Screener,
		analyst:   deps.Analyst,
		approvals: deps.Approvals,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		freshness: deps.Freshness,
		history:   volatility.NewHistory(volatility.DefaultLookback),
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "pipeline"),
		now:       time.Now,
	}
}

// WithClock overrides the clock.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run performs one scan. Halts, a closed market and a full portfolio end the
// scan early with Skipped set; failures on single underlyings only shrink the
// result.
func (p *Pipeline) Run(ctx context.Context) (*ScanResult, error) {
	start := p.now()
	result := &ScanResult{RunID: uuid.NewString(), StartedAt: start, Failed: make(map[string]string)}
	logger := logging.WithRunID(p.logger, result.RunID)
	defer func() { p.metrics.ObserveScan(p.now().Sub(start).Seconds()) }()

	if n, err := p.ledger.ExpireRecommendations(ctx, start); err != nil {
		logger.Warn().Err(err).Msg("Failed to expire stale recommendations")
	} else if n > 0 {
		logger.Info().Int("expired", n).Msg("Expired stale recommendations")
	}

	status, err := p.breaker.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read breaker status: %w", err)
	}
	if status.Halted {
		result.Skipped = "trading halted: " + status.Reason
		logger.Warn().Str("reason", status.Reason).Msg("Trading halted, skipping scan")
		return result, nil
	}

	open, err := p.broker.IsMarketOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("check market clock: %w", err)
	}
	if !open {
		result.Skipped = "market closed"
		logger.Info().Time("next_open", utils.NextMarketOpen(start)).Msg("Market is closed, skipping scan")
		return result, nil
	}

	account, err := p.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	stats := p.breaker.Stats()
	if _, err := stats.InitWeekly(ctx, account.Equity); err != nil {
		return nil, fmt.Errorf("init weekly stats: %w", err)
	}
	if _, err := stats.InitDaily(ctx, account.Equity); err != nil {
		return nil, fmt.Errorf("init daily stats: %w", err)
	}

	vix, err := p.broker.GetVIX(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not fetch VIX")
		vix = nil
	}

	state, err := p.breaker.EvaluateAll(ctx, risk.Inputs{CurrentEquity: account.Equity, VIX: vix})
	if err != nil {
		return nil, fmt.Errorf("evaluate risk: %w", err)
	}
	result.RiskState = state
	p.metrics.ObserveRiskState(state)
	if state.IsHalted() {
		result.Skipped = "trading halted: " + state.Reason
		return result, nil
	}

	positions, err := p.ledger.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	heat := p.sizer.PortfolioHeat(account.Equity, positions)
	p.metrics.ObservePortfolio(len(positions), heat.HeatPercent)
	if heat.AtLimit {
		result.Skipped = fmt.Sprintf("portfolio heat at limit (%.1f%%)", heat.HeatPercent*100)
		logger.Info().Float64("heat", heat.HeatPercent).Msg("Portfolio heat at limit, skipping scan")
		return result, nil
	}

	candidates := p.scanAll(ctx, result, vix, logger)
	result.Candidates = len(candidates)
	if len(result.Failed) > 0 {
		p.checkAPIErrors(ctx, logger)
	}

	rules, err := p.ledger.GetPlaybookRules(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not load playbook rules")
	}

	limit := p.cfg.MaxRecommendations
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	for _, c := range candidates[:limit] {
		rec, err := p.recommend(ctx, c, account.Equity, positions, vix, state, rules, logger)
		if err != nil {
			logger.Warn().Err(err).Str("spread", c.scored.Spread.String()).Msg("Skipping opportunity")
			continue
		}
		if rec == nil {
			continue
		}
		result.Recommendations = append(result.Recommendations, *rec)

		if p.cfg.AutoApprove && p.approvals != nil {
			trade, err := p.approvals.Approve(ctx, rec.ID)
			if err != nil {
				logger.Error().Err(err).Str("recommendation_id", rec.ID).Msg("Auto-approve failed")
				continue
			}
			result.Trades = append(result.Trades, *trade)
		}
	}

	logger.Info().
		Int("scanned", len(result.Scanned)).
		Int("failed", len(result.Failed)).
		Int("candidates", result.Candidates).
		Int("recommendations", len(result.Recommendations)).
		Msg("Scan complete")
	return result, nil
}

// scanAll screens every underlying concurrently and returns the global top
// candidates, best first.
func (p *Pipeline) scanAll(ctx context.Context, result *ScanResult, vix *float64, logger zerolog.Logger) []candidate {
	var (
		mu  sync.Mutex
		all []candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, symbol := range p.cfg.Underlyings {
		symbol := symbol
		g.Go(func() error {
			found, err := p.scanUnderlying(gctx, symbol, vix)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[symbol] = err.Error()
				l := logging.WithSymbol(logger, symbol)
				l.Warn().Err(err).Msg("Scan of underlying failed")
				return nil
			}
			result.Scanned = append(result.Scanned, symbol)
			all = append(all, found...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Scanned)
	sort.SliceStable(all, func(i, j int) bool { return all[i].scored.Score > all[j].scored.Score })
	return all
}

// scanUnderlying fetches one chain, records its IV and returns its top spreads.
func (p *Pipeline) scanUnderlying(ctx context.Context, symbol string, vix *float64) ([]candidate, error) {
	now := p.now()
	cfg := p.screener.Config()
	from := now.AddDate(0, 0, cfg.MinDTE)
	to := now.AddDate(0, 0, cfg.MaxDTE)

	chain, err := p.broker.GetOptionsChain(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("get chain: %w", err)
	}
	if len(chain.Contracts) == 0 {
		return nil, nil
	}
	if !chain.Timestamp.IsZero() {
		p.freshness.Touch(symbol, chain.Timestamp)
		if p.breaker.EvaluateStaleness(chain.Timestamp, now).IsHalted() {
			return nil, apperrors.NewDataStalenessError(symbol, now.Sub(chain.Timestamp), p.breaker.Config().StaleDataAfter)
		}
	}

	iv, err := p.ivMetrics(ctx, chain, vix)
	if err != nil {
		return nil, err
	}

	scored := p.screener.ScreenChain(chain, iv)
	p.metrics.Screened(symbol, len(scored))
	if n := p.cfg.TopPerUnderlying; n > 0 && len(scored) > n {
		scored = scored[:n]
	}

	out := make([]candidate, len(scored))
	for i, s := range scored {
		out[i] = candidate{scored: s, price: chain.UnderlyingPrice, metrics: iv}
	}
	return out, nil
}

// ivMetrics derives IV rank from the ATM implied volatility and its stored
// history. Short histories fall back to a VIX-based rank estimate.
func (p *Pipeline) ivMetrics(ctx context.Context, chain *models.OptionChain, vix *float64) (volatility.Metrics, error) {
	current := atmIV(chain, p.cfg.ATMBand)
	symbol := chain.Underlying

	stored, err := p.ledger.GetIVHistory(ctx, symbol, volatility.DefaultLookback)
	if err != nil {
		return volatility.Metrics{}, fmt.Errorf("load IV history: %w", err)
	}
	observations := make([]volatility.Observation, len(stored))
	for i, o := range stored {
		observations[i] = volatility.Observation{Date: o.Date, IV: o.IV}
	}
	p.history.Load(symbol, observations)

	var metrics volatility.Metrics
	if p.history.Len(symbol) >= p.cfg.MinIVHistory {
		metrics = p.history.Metrics(symbol, current)
	} else {
		rank := volatility.EstimateRankFromVIX(vix)
		metrics = volatility.Metrics{
			CurrentIV:  current,
			Rank:       rank,
			Percentile: rank,
			High:       current * 1.2,
			Low:        current * 0.7,
			Regime:     volatility.ClassifyRegime(rank),
			Samples:    p.history.Len(symbol),
		}
	}

	obs := models.IVObservation{Symbol: symbol, Date: p.now(), IV: current}
	if err := p.ledger.SaveIVObservation(ctx, obs); err != nil {
		p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record IV observation")
	} else {
		p.history.Add(symbol, obs.Date, obs.IV)
	}
	return metrics, nil
}

// recommend sizes, analyses and stores one candidate. It returns nil without
// error when the candidate is dropped by sizing or the analyst.
func (p *Pipeline) recommend(ctx context.Context, c candidate, equity float64, positions []models.Position,
	vix *float64, state models.RiskState, rules []models.PlaybookRule, logger zerolog.Logger) (*models.Recommendation, error) {
	spread := c.scored.Spread
	log := logging.WithSymbol(logger, spread.Underlying)

	size := p.sizer.CalculateSize(spread, equity, positions, vix)
	if size.Contracts == 0 {
		log.Info().Str("reason", size.Reason).Msg("Position size is zero")
		return nil, nil
	}
	contracts := risk.ApplyMultiplier(size.Contracts, state.SizeMultiplier)
	if contracts < size.Contracts {
		log.Info().Int("sized", size.Contracts).Int("adjusted", contracts).Msg("Risk-adjusted contracts")
	}

	analysis := &models.TradeAnalysis{Confidence: models.ConfidenceMedium}
	if p.analyst != nil {
		tc := models.TradeContext{
			UnderlyingPrice: c.price,
			IVRank:          c.metrics.Rank,
			CurrentIV:       c.metrics.CurrentIV,
			DTE:             c.scored.DTE,
		}
		if vix != nil {
			tc.VIX = *vix
		}
		var err error
		analysis, err = p.analyst.AnalyzeTrade(ctx, spread, tc, rules)
		if err != nil {
			return nil, fmt.Errorf("analyse %s: %w", spread, err)
		}
		if agents.ShouldDrop(analysis) {
			log.Info().Str("reason", analysis.ConfidenceReason).Msg("Skipping low confidence trade")
			return nil, nil
		}
	}

	now := p.now()
	rec := &models.Recommendation{
		ID:                 uuid.NewString(),
		CreatedAt:          now,
		ExpiresAt:          now.Add(p.cfg.RecommendationTTL),
		Status:             models.RecommendationPending,
		Underlying:         spread.Underlying,
		SpreadType:         spread.Type,
		ShortStrike:        spread.Short.Strike,
		LongStrike:         spread.Long.Strike,
		Expiration:         spread.Expiration,
		Credit:             spread.Credit(),
		MaxLoss:            spread.MaxLoss(),
		IVRank:             c.metrics.Rank,
		Delta:              c.scored.ShortDelta,
		Score:              c.scored.Score,
		Thesis:             analysis.Thesis,
		Confidence:         analysis.Confidence,
		SuggestedContracts: contracts,
		UnderlyingPrice:    c.price,
	}
	if err := p.ledger.SaveRecommendation(ctx, rec); err != nil {
		return nil, fmt.Errorf("save recommendation: %w", err)
	}
	p.metrics.RecommendationSaved()
	if err := p.notifier.Send(ctx, notify.RecommendationReady(rec)); err != nil {
		log.Warn().Err(err).Msg("Recommendation notification failed")
	}
	log.Info().
		Str("recommendation_id", rec.ID).
		Str("spread", spread.String()).
		Float64("credit", rec.Credit).
		Int("contracts", contracts).
		Int("dte", greeks.DaysToExpiry(spread.Expiration, now)).
		Msg("Recommendation created")
	return rec, nil
}

// checkAPIErrors trips the breaker when scan failures pushed the API error
// count over its limit.
func (p *Pipeline) checkAPIErrors(ctx context.Context, logger zerolog.Logger) {
	count, err := p.breaker.Stats().APIErrorCount(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not read API error count")
		return
	}
	if state := p.breaker.EvaluateAPIErrors(count); state.IsHalted() {
		if _, err := p.breaker.Trip(ctx, state.Reason); err != nil {
			logger.Error().Err(err).Msg("Failed to trip circuit breaker")
		}
	}
}

// atmIV returns the implied volatility of the first contract whose strike is
// within band of the underlying price.
func atmIV(chain *models.OptionChain, band float64) float64 {
	limit := chain.UnderlyingPrice * band
	for _, c := range chain.Contracts {
		d := c.Strike - chain.UnderlyingPrice
		if d < 0 {
			d = -d
		}
		if d < limit && c.IV != nil && *c.IV > 0 {
			return *c.IV
		}
	}
	return defaultATMIV
}
