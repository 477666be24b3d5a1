package risk

import (
	"strings"
	"testing"
	"time"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

func floatPtr(f float64) *float64 { return &f }

func TestCalculateSizeForMaxLoss(t *testing.T) {
	sizer := NewPositionSizer(DefaultConfig())

	tests := []struct {
		name       string
		maxLoss    float64
		heat       float64
		vix        *float64
		contracts  int
		constraint Constraint
		reason     string
	}{
		{"trade cap", 350, 0, nil, 5, ConstraintTradeRisk, ""},
		{"heat binds", 350, 9000, nil, 2, ConstraintPortfolioHeat, "Limited by portfolio heat (9.0%)"},
		{"heat exhausted", 350, 10000, nil, 0, ConstraintPortfolioHeat, "Portfolio heat limit reached (10.0% of 10%)"},
		{"trade risk too large", 2500, 0, nil, 0, ConstraintTradeRisk, "Trade risk exceeds 2% limit"},
		{"invalid", 0, 0, nil, 0, ConstraintInvalid, "Invalid spread: no risk calculated"},
		{"extreme vix", 350, 0, floatPtr(55), 0, ConstraintVIX, "VIX (55.0) exceeds extreme threshold (50)"},
		{"high vix", 350, 0, floatPtr(42), 1, ConstraintVIX, "Reduced by 75% due to VIX (42.0)"},
		{"moderate vix untouched", 350, 0, floatPtr(35), 5, ConstraintTradeRisk, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var positions []models.Position
			if tt.heat > 0 {
				positions = []models.Position{{Underlying: "QQQ", CurrentValue: tt.heat}}
			}
			got := sizer.CalculateSizeForMaxLoss(tt.maxLoss, 100000, positions, tt.vix)
			if got.Contracts != tt.contracts || got.Constraint != tt.constraint || got.Reason != tt.reason {
				t.Errorf("got %+v", got)
			}
			if got.RiskAmount != float64(got.Contracts)*got.MaxLossPerContract {
				t.Errorf("risk amount %v inconsistent", got.RiskAmount)
			}
		})
	}
}

func TestHighVIXNeverResurrectsZero(t *testing.T) {
	sizer := NewPositionSizer(DefaultConfig())
	positions := []models.Position{{Underlying: "SPY", CurrentValue: 10000}}

	got := sizer.CalculateSizeForMaxLoss(350, 100000, positions, floatPtr(45))
	if got.Contracts != 0 {
		t.Errorf("contracts = %d, want 0", got.Contracts)
	}
}

func TestPortfolioHeat(t *testing.T) {
	sizer := NewPositionSizer(DefaultConfig())
	positions := []models.Position{
		{Underlying: "SPY", CurrentValue: 3000},
		{Underlying: "SPY", CurrentValue: 1000},
		{Underlying: "IWM", CurrentValue: 2000},
	}

	report := sizer.PortfolioHeat(100000, positions)
	if report.TotalRisk != 6000 || report.ByUnderlying["SPY"] != 4000 || report.ByUnderlying["IWM"] != 2000 {
		t.Errorf("report = %+v", report)
	}
	if report.AtLimit {
		t.Error("6% heat reported at limit")
	}
	if report.AvailableCapacity < 3999 || report.AvailableCapacity > 4001 {
		t.Errorf("available = %v, want 4000", report.AvailableCapacity)
	}
}

func TestApplyMultiplier(t *testing.T) {
	for _, tc := range []struct {
		contracts int
		mult      float64
		want      int
	}{
		{10, 1.0, 10},
		{10, 0.5, 5},
		{3, 0.25, 1},
		{0, 1.0, 0},
		{10, 0, 0},
	} {
		if got := ApplyMultiplier(tc.contracts, tc.mult); got != tc.want {
			t.Errorf("ApplyMultiplier(%d, %v) = %d, want %d", tc.contracts, tc.mult, got, tc.want)
		}
	}
}

func TestValidateRecommendation(t *testing.T) {
	v := NewTradeValidator(DefaultValidatorConfig())
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	rec := models.Recommendation{
		ID:         "rec-1",
		Status:     models.RecommendationPending,
		ExpiresAt:  now.Add(15 * time.Minute),
		Expiration: now.AddDate(0, 0, 35),
	}
	if err := v.ValidateRecommendation(&rec, now); err != nil {
		t.Fatalf("valid recommendation rejected: %v", err)
	}

	expired := rec
	expired.ExpiresAt = now
	if err := v.ValidateRecommendation(&expired, now); !apperrors.Is(err, apperrors.ErrRecommendationExpired) {
		t.Errorf("expired = %v", err)
	}

	approved := rec
	approved.Status = models.RecommendationApproved
	if err := v.ValidateRecommendation(&approved, now); !apperrors.Is(err, apperrors.ErrInvalidSpread) {
		t.Errorf("approved = %v", err)
	}

	near := rec
	near.Expiration = now.AddDate(0, 0, 14)
	err := v.ValidateRecommendation(&near, now)
	if err == nil || !strings.Contains(err.Error(), "DTE (14) is below minimum (21)") {
		t.Errorf("near expiry = %v", err)
	}
}

func TestValidatePriceDrift(t *testing.T) {
	v := NewTradeValidator(DefaultValidatorConfig())

	if err := v.ValidatePriceDrift(0, 1.25); err != nil {
		t.Errorf("missing analysis price = %v", err)
	}
	if err := v.ValidatePriceDrift(1.00, 1.005); err != nil {
		t.Errorf("0.5%% drift = %v", err)
	}
	if err := v.ValidatePriceDrift(1.00, 1.05); err == nil {
		t.Error("5% drift accepted")
	}
	if err := v.ValidatePriceDrift(-1, 1.0); err == nil {
		t.Error("negative analysis price accepted")
	}
}

func TestValidateSpread(t *testing.T) {
	v := NewTradeValidator(DefaultValidatorConfig())
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	exp := now.AddDate(0, 0, 30)

	leg := func(strike, bid, ask float64) models.OptionContract {
		return models.OptionContract{Strike: strike, Bid: bid, Ask: ask, Type: models.OptionPut, Expiration: exp}
	}

	good := models.CreditSpread{Underlying: "SPY", Type: models.BullPutSpread,
		Short: leg(480, 2.00, 2.10), Long: leg(475, 0.90, 1.00), Expiration: exp}
	if err := v.ValidateSpread(good, now); err != nil {
		t.Fatalf("good spread = %v", err)
	}

	inverted := good
	inverted.Short, inverted.Long = leg(475, 2.00, 2.10), leg(480, 0.90, 1.00)
	if err := v.ValidateSpread(inverted, now); err == nil || !strings.Contains(err.Error(), "short strike must be above") {
		t.Errorf("inverted = %v", err)
	}

	debit := good
	debit.Short, debit.Long = leg(480, 0.90, 1.00), leg(475, 2.00, 2.10)
	if err := v.ValidateSpread(debit, now); err == nil {
		t.Error("debit spread accepted")
	}

	expired := good
	expired.Expiration = now
	if err := v.ValidateSpread(expired, now); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("expired = %v", err)
	}
}
