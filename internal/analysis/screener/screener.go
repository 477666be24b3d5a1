// Package screener enumerates, filters and scores vertical credit spreads from
// an option chain.
package screener

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/analysis"
	"spread-trader/internal/analysis/greeks"
	"spread-trader/internal/analysis/volatility"
	"spread-trader/internal/models"
)

// Screener finds candidate credit spreads.
type Screener struct {
	cfg     Config
	weights Weights
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a screener.
func New(cfg Config, logger zerolog.Logger) *Screener {
	return &Screener{
		cfg:     cfg,
		weights: DefaultWeights(),
		logger:  logger.With().Str("component", "screener").Logger(),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for days-to-expiry.
func (s *Screener) WithClock(now func() time.Time) *Screener {
	s.now = now
	return s
}

// Config returns the screener thresholds.
func (s *Screener) Config() Config {
	return s.cfg
}

// ScreenChain returns every qualifying spread on the chain, best score first.
func (s *Screener) ScreenChain(chain *models.OptionChain, iv volatility.Metrics) []models.ScoredSpread {
	if chain == nil {
		return nil
	}
	log := s.logger.With().Str("symbol", chain.Underlying).Logger()

	if iv.Rank < s.cfg.MinIVRank {
		log.Debug().Float64("iv_rank", iv.Rank).Float64("min", s.cfg.MinIVRank).Msg("IV rank below minimum")
		return nil
	}

	now := s.now()
	var out []models.ScoredSpread
	for _, exp := range chain.Expirations() {
		dte := greeks.DaysToExpiry(exp, now)
		if dte < s.cfg.MinDTE || dte > s.cfg.MaxDTE {
			continue
		}
		puts := s.FilterLiquidity(chain.ByExpiration(exp, models.OptionPut))
		calls := s.FilterLiquidity(chain.ByExpiration(exp, models.OptionCall))

		out = append(out, s.findSpreads(chain, models.BullPutSpread, puts, exp, dte, iv)...)
		out = append(out, s.findSpreads(chain, models.BearCallSpread, calls, exp, dte, iv)...)
	}

	sortByScore(out)
	log.Debug().Int("candidates", len(out)).Msg("Chain screened")
	return out
}

// FilterLiquidity keeps contracts with enough open interest and volume, a
// two-sided quote and a tight enough bid/ask spread.
func (s *Screener) FilterLiquidity(contracts []models.OptionContract) []models.OptionContract {
	out := make([]models.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.OpenInterest < s.cfg.MinOpenInterest || c.Volume < s.cfg.MinVolume {
			continue
		}
		if c.Bid <= 0 || c.Ask <= 0 {
			continue
		}
		if c.SpreadPct() > s.cfg.MaxBidAskSpreadPct {
			continue
		}
		out = append(out, c)
	}
	return out
}

// findSpreads pairs each short strike inside the delta window with every
// further-OTM strike whose width is in range.
func (s *Screener) findSpreads(chain *models.OptionChain, typ models.SpreadType, contracts []models.OptionContract,
	exp time.Time, dte int, iv volatility.Metrics) []models.ScoredSpread {

	if len(contracts) < 2 {
		return nil
	}
	sorted := append([]models.OptionContract(nil), contracts...)
	if typ == models.BullPutSpread {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike > sorted[j].Strike })
	} else {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })
	}

	var out []models.ScoredSpread
	for i, short := range sorted {
		delta := s.contractDelta(chain, short, dte, iv.CurrentIV)
		absDelta := math.Abs(delta)
		if absDelta < s.cfg.MinDelta || absDelta > s.cfg.MaxDelta {
			continue
		}
		for _, long := range sorted[i+1:] {
			spread := models.CreditSpread{
				Underlying: chain.Underlying,
				Type:       typ,
				Short:      short,
				Long:       long,
				Expiration: exp,
			}
			width := spread.Width()
			if width < s.cfg.MinWidth || width > s.cfg.MaxWidth {
				continue
			}
			if !spread.StrikesOrdered() {
				continue
			}
			credit := spread.Credit()
			if credit <= 0 || credit/width < s.cfg.MinCreditPct {
				continue
			}
			scored := s.Score(spread, iv.Rank, delta)
			scored.DTE = dte
			out = append(out, scored)
		}
	}
	return out
}

// contractDelta prefers the broker's delta and falls back to Black-Scholes.
func (s *Screener) contractDelta(chain *models.OptionChain, c models.OptionContract, dte int, fallbackIV float64) float64 {
	if c.Delta != nil {
		return *c.Delta
	}
	vol := fallbackIV
	if c.IV != nil && *c.IV > 0 {
		vol = *c.IV
	}
	return greeks.Delta(greeks.Inputs{
		Spot:       chain.UnderlyingPrice,
		Strike:     c.Strike,
		Years:      float64(dte) / 365,
		Volatility: vol,
		Rate:       s.cfg.RiskFreeRate,
		Type:       c.Type,
	})
}

// Score rates a spread in [0,1].
func (s *Screener) Score(spread models.CreditSpread, ivRank, shortDelta float64) models.ScoredSpread {
	width := spread.Width()
	credit := spread.Credit()
	absDelta := math.Abs(shortDelta)
	pOTM := 1 - absDelta
	ev := credit*models.ContractMultiplier*pOTM - spread.MaxLoss()*(1-pOTM)

	ivScore := analysis.Clamp(ivRank/100, 0, 1)
	deltaScore := math.Max(0, 1-math.Abs(absDelta-0.25)*4)

	var creditScore, evScore float64
	if width > 0 {
		creditScore = math.Min(credit/width, 0.5) * 2
		evScore = analysis.Clamp(math.Max(0, ev)/(width*models.ContractMultiplier), 0, 1)
	}

	score := s.weights.IVRank*ivScore +
		s.weights.Delta*deltaScore +
		s.weights.Credit*creditScore +
		s.weights.EV*evScore

	return models.ScoredSpread{
		Spread:         spread,
		Score:          score,
		IVRank:         ivRank,
		ShortDelta:     shortDelta,
		ProbabilityOTM: pOTM,
		ExpectedValue:  ev,
	}
}

func sortByScore(spreads []models.ScoredSpread) {
	sort.SliceStable(spreads, func(i, j int) bool { return spreads[i].Score > spreads[j].Score })
}
