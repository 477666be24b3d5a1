// Package metrics holds the Prometheus collectors for the trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spread-trader/internal/models"
)

const namespace = "spread_trader"

// Metrics is the collector set. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OrdersPlaced      *prometheus.CounterVec
	OrderFills        *prometheus.CounterVec
	OrderAdjustments  prometheus.Counter
	OrderTimeouts     prometheus.Counter
	BreakerTrips      prometheus.Counter
	RiskLevel         prometheus.Gauge
	SizeMultiplier    prometheus.Gauge
	ScreenedSpreads   *prometheus.CounterVec
	Recommendations   prometheus.Counter
	APIErrors         *prometheus.CounterVec
	OpenPositions     prometheus.Gauge
	PortfolioHeat     prometheus.Gauge
	ExitsTriggered    *prometheus.CounterVec
	ScanDuration      prometheus.Histogram
	NotificationFails *prometheus.CounterVec
}

// New creates and registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Spread orders submitted to the broker",
		}, []string{"kind"}),
		OrderFills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_fills_total",
			Help:      "Spread orders filled",
		}, []string{"kind"}),
		OrderAdjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_adjustments_total",
			Help:      "Limit price adjustments issued by the fill monitor",
		}),
		OrderTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_timeouts_total",
			Help:      "Orders that did not fill before the monitor timeout",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Trading halts recorded",
		}),
		RiskLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_level",
			Help:      "0=normal 1=elevated 2=caution 3=high 4=critical 5=halted",
		}),
		SizeMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_size_multiplier",
			Help:      "Size multiplier from the latest risk evaluation",
		}),
		ScreenedSpreads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screened_spreads_total",
			Help:      "Spreads passing the screener",
		}, []string{"underlying"}),
		Recommendations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendations persisted",
		}),
		APIErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_api_errors_total",
			Help:      "Broker API calls that failed",
		}, []string{"operation"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open spread positions",
		}),
		PortfolioHeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_heat_ratio",
			Help:      "Open risk as a fraction of equity",
		}),
		ExitsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_triggered_total",
			Help:      "Exit conditions triggered",
		}, []string{"reason"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full scan",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		NotificationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications a channel failed to deliver",
		}, []string{"channel"}),
	}

	m.registry.MustRegister(
		m.OrdersPlaced, m.OrderFills, m.OrderAdjustments, m.OrderTimeouts,
		m.BreakerTrips, m.RiskLevel, m.SizeMultiplier, m.ScreenedSpreads,
		m.Recommendations, m.APIErrors, m.OpenPositions, m.PortfolioHeat,
		m.ExitsTriggered, m.ScanDuration, m.NotificationFails,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var riskLevelValues = map[models.RiskLevel]float64{
	models.RiskNormal:   0,
	models.RiskElevated: 1,
	models.RiskCaution:  2,
	models.RiskHigh:     3,
	models.RiskCritical: 4,
	models.RiskHalted:   5,
}

// ObserveRiskState records the latest aggregate risk evaluation.
func (m *Metrics) ObserveRiskState(state models.RiskState) {
	if m == nil {
		return
	}
	m.RiskLevel.Set(riskLevelValues[state.Level])
	m.SizeMultiplier.Set(state.SizeMultiplier)
}

// OrderPlaced counts a submitted order; kind is "open" or "close".
func (m *Metrics) OrderPlaced(kind string) {
	if m == nil {
		return
	}
	m.OrdersPlaced.WithLabelValues(kind).Inc()
}

// OrderFilled counts a filled order.
func (m *Metrics) OrderFilled(kind string) {
	if m == nil {
		return
	}
	m.OrderFills.WithLabelValues(kind).Inc()
}

// OrderAdjusted counts a ladder step.
func (m *Metrics) OrderAdjusted() {
	if m == nil {
		return
	}
	m.OrderAdjustments.Inc()
}

// OrderTimedOut counts a monitor timeout.
func (m *Metrics) OrderTimedOut() {
	if m == nil {
		return
	}
	m.OrderTimeouts.Inc()
}

// BreakerTripped counts a trading halt.
func (m *Metrics) BreakerTripped() {
	if m == nil {
		return
	}
	m.BreakerTrips.Inc()
}

// Screened counts spreads passing the screener for underlying.
func (m *Metrics) Screened(underlying string, n int) {
	if m == nil {
		return
	}
	m.ScreenedSpreads.WithLabelValues(underlying).Add(float64(n))
}

// RecommendationSaved counts a persisted recommendation.
func (m *Metrics) RecommendationSaved() {
	if m == nil {
		return
	}
	m.Recommendations.Inc()
}

// APIError counts a failed broker call.
func (m *Metrics) APIError(operation string) {
	if m == nil {
		return
	}
	m.APIErrors.WithLabelValues(operation).Inc()
}

// ObservePortfolio records the open position count and heat ratio.
func (m *Metrics) ObservePortfolio(open int, heat float64) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(open))
	m.PortfolioHeat.Set(heat)
}

// ExitTriggered counts an exit condition by reason.
func (m *Metrics) ExitTriggered(reason models.ExitReason) {
	if m == nil {
		return
	}
	m.ExitsTriggered.WithLabelValues(string(reason)).Inc()
}

// ObserveScan records the duration of a scan in seconds.
func (m *Metrics) ObserveScan(seconds float64) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(seconds)
}

// NotificationFailed counts a failed delivery on channel.
func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.NotificationFails.WithLabelValues(channel).Inc()
}
