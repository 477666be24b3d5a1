// Package greeks computes Black-Scholes sensitivities for single options and
// two-leg credit spreads.
package greeks

import (
	"math"
	"time"

	"spread-trader/internal/analysis"
	"spread-trader/internal/models"
)

// DefaultRiskFreeRate is used when no rate is configured.
const DefaultRiskFreeRate = 0.05

// Inputs are the Black-Scholes model parameters.
type Inputs struct {
	Spot       float64
	Strike     float64
	Years      float64 // time to expiry in years
	Volatility float64 // annualised implied volatility, 0.20 = 20%
	Rate       float64
	Type       models.OptionType
}

// D1 returns the Black-Scholes d1 term.
func D1(in Inputs) float64 {
	return (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.Years) /
		(in.Volatility * math.Sqrt(in.Years))
}

// D2 returns the Black-Scholes d2 term.
func D2(in Inputs) float64 {
	return D1(in) - in.Volatility*math.Sqrt(in.Years)
}

// Calculate returns delta, gamma, theta (per day), vega and rho (per point).
// At or past expiry, or with no volatility, it returns the intrinsic delta and
// zero for every other Greek.
func Calculate(in Inputs) models.OptionGreeks {
	if in.Years <= 0 || in.Volatility <= 0 || in.Spot <= 0 || in.Strike <= 0 {
		return expired(in)
	}

	sqrtT := math.Sqrt(in.Years)
	d1 := D1(in)
	d2 := d1 - in.Volatility*sqrtT
	pdf := analysis.NormPDF(d1)
	discount := math.Exp(-in.Rate * in.Years)

	gamma := pdf / (in.Spot * in.Volatility * sqrtT)
	vega := in.Spot * pdf * sqrtT / 100
	decay := -in.Spot * pdf * in.Volatility / (2 * sqrtT)

	if in.Type == models.OptionCall {
		return models.OptionGreeks{
			Delta: analysis.NormCDF(d1),
			Gamma: gamma,
			Theta: (decay - in.Rate*in.Strike*discount*analysis.NormCDF(d2)) / 365,
			Vega:  vega,
			Rho:   in.Strike * in.Years * discount * analysis.NormCDF(d2) / 100,
		}
	}
	return models.OptionGreeks{
		Delta: analysis.NormCDF(d1) - 1,
		Gamma: gamma,
		Theta: (decay + in.Rate*in.Strike*discount*analysis.NormCDF(-d2)) / 365,
		Vega:  vega,
		Rho:   -in.Strike * in.Years * discount * analysis.NormCDF(-d2) / 100,
	}
}

func expired(in Inputs) models.OptionGreeks {
	var delta float64
	if in.Type == models.OptionCall {
		if in.Spot > in.Strike {
			delta = 1
		}
	} else if in.Spot < in.Strike {
		delta = -1
	}
	return models.OptionGreeks{Delta: delta}
}

// Delta is a shortcut for Calculate(in).Delta.
func Delta(in Inputs) float64 {
	return Calculate(in).Delta
}

// Spread returns the position Greeks of a credit spread: short minus long,
// scaled by contracts and the contract multiplier, sign flipped for the short side.
func Spread(short, long models.OptionGreeks, contracts int) models.OptionGreeks {
	scale := -float64(contracts) * models.ContractMultiplier
	return models.OptionGreeks{
		Delta: (short.Delta - long.Delta) * scale,
		Gamma: (short.Gamma - long.Gamma) * scale,
		Theta: (short.Theta - long.Theta) * scale,
		Vega:  (short.Vega - long.Vega) * scale,
		Rho:   (short.Rho - long.Rho) * scale,
	}
}

// DaysToExpiry returns whole calendar days from now until the expiration date, floored at zero.
func DaysToExpiry(expiration, now time.Time) int {
	ey, em, ed := expiration.Date()
	ny, nm, nd := now.In(expiration.Location()).Date()
	exp := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	days := int(exp.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// YearsToExpiry converts calendar days to expiry into years.
func YearsToExpiry(expiration, now time.Time) float64 {
	return float64(DaysToExpiry(expiration, now)) / 365
}
