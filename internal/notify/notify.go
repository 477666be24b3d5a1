// Package notify provides notification functionality for the trading engine.
//
// Notifications are fire-and-forget: callers log a failed Send and carry on.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/logging"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
	"spread-trader/internal/security"
	"spread-trader/pkg/utils"
)

// Notifier delivers a notification.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRecommendation NotificationType = "recommendation"
	NotificationFill           NotificationType = "fill"
	NotificationExit           NotificationType = "exit"
	NotificationCircuitBreaker NotificationType = "circuit_breaker"
	NotificationReconciliation NotificationType = "reconciliation"
	NotificationSummary        NotificationType = "summary"
	NotificationError          NotificationType = "error"
	NotificationFillQuality    NotificationType = "fill_quality"
	NotificationInfo           NotificationType = "info"
)

// Critical reports whether the notification needs a human to act.
func (t NotificationType) Critical() bool {
	switch t {
	case NotificationCircuitBreaker, NotificationReconciliation, NotificationError:
		return true
	}
	return false
}

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll          NotificationLevel = "all"
	LevelTradesOnly   NotificationLevel = "trades_only"
	LevelCriticalOnly NotificationLevel = "critical_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	mu       sync.RWMutex
}

var _ Notifier = (*MultiNotifier)(nil)

// NewMultiNotifier creates a notifier with no channels. m may be nil.
func NewMultiNotifier(level NotificationLevel, m *metrics.Metrics, logger zerolog.Logger) *MultiNotifier {
	if level == "" {
		level = LevelAll
	}
	return &MultiNotifier{
		level:   level,
		metrics: m,
		logger:  logging.WithComponent(logger, "notify"),
	}
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return t == NotificationFill || t == NotificationExit || t.Critical()
	case LevelCriticalOnly:
		return t.Critical()
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. Every channel is tried;
// failures are logged, counted and returned together.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			mn.metrics.NotificationFailed(ch.Name())
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Str("type", string(n.Type)).Msg("Notification failed")
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Nop discards every notification.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Notification) error { return nil }

// ============================================================================
// Message builders
// ============================================================================

func spreadLabel(underlying string, typ models.SpreadType, short, long float64, exp time.Time) string {
	return fmt.Sprintf("%s %s %s/%s %s", underlying, typ,
		strconv.FormatFloat(short, 'f', -1, 64), strconv.FormatFloat(long, 'f', -1, 64), exp.Format(models.DateLayout))
}

// RecommendationReady announces a recommendation awaiting approval.
func RecommendationReady(rec *models.Recommendation) Notification {
	label := spreadLabel(rec.Underlying, rec.SpreadType, rec.ShortStrike, rec.LongStrike, rec.Expiration)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Spread: %s\n", label)
	fmt.Fprintf(&sb, "Credit: %s | Max loss: %s | Contracts: %d\n",
		utils.FormatUSD(rec.Credit), utils.FormatUSD(rec.MaxLoss), rec.SuggestedContracts)
	fmt.Fprintf(&sb, "IV rank: %.0f | Delta: %.2f | Score: %.2f\n", rec.IVRank, rec.Delta, rec.Score)
	fmt.Fprintf(&sb, "Confidence: %s\nExpires: %s", rec.Confidence, rec.ExpiresAt.Format("15:04:05"))
	if rec.Thesis != "" {
		fmt.Fprintf(&sb, "\n\n%s", rec.Thesis)
	}

	return Notification{
		Type:    NotificationRecommendation,
		Title:   "New recommendation: " + rec.Underlying,
		Message: sb.String(),
		Data: map[string]interface{}{
			"recommendation_id": rec.ID,
			"underlying":        rec.Underlying,
			"spread_type":       rec.SpreadType,
			"short_strike":      rec.ShortStrike,
			"long_strike":       rec.LongStrike,
			"expiration":        rec.Expiration.Format(models.DateLayout),
			"credit":            rec.Credit,
			"contracts":         rec.SuggestedContracts,
			"expires_at":        rec.ExpiresAt,
		},
	}
}

// OrderFilled announces an opening fill.
func OrderFilled(trade *models.Trade, fillPrice float64) Notification {
	label := spreadLabel(trade.Underlying, trade.SpreadType, trade.ShortStrike, trade.LongStrike, trade.Expiration)
	return Notification{
		Type:  NotificationFill,
		Title: "Order filled: " + trade.Underlying,
		Message: fmt.Sprintf("Spread: %s\nContracts: %d\nCredit: %s",
			label, trade.Contracts, utils.FormatUSD(fillPrice)),
		Data: map[string]interface{}{
			"trade_id":   trade.ID,
			"order_id":   trade.BrokerOrderID,
			"contracts":  trade.Contracts,
			"fill_price": fillPrice,
		},
	}
}

// ExitTriggered announces an exit condition. executed is false when the
// position must be closed manually.
func ExitTriggered(trade *models.Trade, reason models.ExitReason, closeCost, pnl float64, executed bool) Notification {
	label := spreadLabel(trade.Underlying, trade.SpreadType, trade.ShortStrike, trade.LongStrike, trade.Expiration)
	action := "Close manually"
	if executed {
		action = "Closed automatically"
	}
	return Notification{
		Type:  NotificationExit,
		Title: fmt.Sprintf("Exit %s: %s", reason, trade.Underlying),
		Message: fmt.Sprintf("Spread: %s\nEntry credit: %s | Close cost: %s\nP&L: %s\n%s",
			label, utils.FormatUSD(trade.EntryCredit), utils.FormatUSD(closeCost), utils.FormatPnL(pnl), action),
		Data: map[string]interface{}{
			"trade_id":   trade.ID,
			"reason":     reason,
			"close_cost": closeCost,
			"pnl":        pnl,
			"executed":   executed,
		},
	}
}

// CircuitBreakerTripped announces a trading halt.
func CircuitBreakerTripped(status models.CircuitBreakerStatus) Notification {
	data := map[string]interface{}{"reason": status.Reason}
	msg := "Trading halted: " + status.Reason
	if status.TriggeredAt != nil {
		data["triggered_at"] = *status.TriggeredAt
		msg += "\nAt: " + status.TriggeredAt.Format(time.RFC3339)
	}
	return Notification{
		Type:    NotificationCircuitBreaker,
		Title:   "Circuit breaker tripped",
		Message: msg + "\nManual reset required.",
		Data:    data,
	}
}

// ReconciliationMismatch announces a ledger/broker disagreement.
func ReconciliationMismatch(tradeID, orderID, ledgerState, brokerState string) Notification {
	return Notification{
		Type:  NotificationReconciliation,
		Title: "Reconciliation mismatch",
		Message: fmt.Sprintf("Trade %s (order %s)\nLedger: %s\nBroker: %s\nAcknowledge after review.",
			tradeID, orderID, ledgerState, brokerState),
		Data: map[string]interface{}{
			"trade_id":     tradeID,
			"order_id":     orderID,
			"ledger_state": ledgerState,
			"broker_state": brokerState,
		},
	}
}

// DailySummary announces the end-of-day performance row.
func DailySummary(perf *models.DailyPerformance, openPositions int) Notification {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Balance: %s -> %s\n", utils.FormatUSD(perf.StartingBalance), utils.FormatUSD(perf.EndingBalance))
	fmt.Fprintf(&sb, "Realized P&L: %s\n", utils.FormatPnL(perf.RealizedPnL))
	fmt.Fprintf(&sb, "Opened: %d | Closed: %d (W %d / L %d)\n", perf.TradesOpened, perf.TradesClosed, perf.WinCount, perf.LossCount)
	fmt.Fprintf(&sb, "Open positions: %d", openPositions)

	return Notification{
		Type:    NotificationSummary,
		Title:   "Daily summary " + perf.Date,
		Message: sb.String(),
		Data: map[string]interface{}{
			"date":           perf.Date,
			"realized_pnl":   perf.RealizedPnL,
			"trades_opened":  perf.TradesOpened,
			"trades_closed":  perf.TradesClosed,
			"win_rate":       perf.WinRate(),
			"open_positions": openPositions,
		},
	}
}

// FillQualityAlert announces a fill that crossed a quality threshold.
func FillQualityAlert(kind, underlying, orderID, message string) Notification {
	return Notification{
		Type:    NotificationFillQuality,
		Title:   "Fill quality: " + kind,
		Message: message,
		Data: map[string]interface{}{
			"alert":      kind,
			"underlying": underlying,
			"order_id":   orderID,
		},
	}
}

// Error announces a failure in a scheduled task.
// Credentials in the error text are masked.
func Error(err error, task string) Notification {
	msg := security.Redact(err.Error())
	return Notification{
		Type:    NotificationError,
		Title:   "Error in " + task,
		Message: fmt.Sprintf("Task: %s\nError: %s", task, msg),
		Data: map[string]interface{}{
			"task":  task,
			"error": msg,
		},
	}
}
