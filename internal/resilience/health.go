package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/models"
	"spread-trader/internal/store"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status          HealthStatus      `json:"status"`
	Uptime          time.Duration     `json:"uptime"`
	StartTime       time.Time         `json:"start_time"`
	CheckedAt       time.Time         `json:"checked_at"`
	Components      []ComponentHealth `json:"components"`
	TotalChecks     int64             `json:"total_checks"`
	FailedChecks    int64             `json:"failed_checks"`
	PanicRecoveries int64             `json:"panic_recoveries"`
}

// HealthAlert is raised when a component turns unhealthy or a check panics.
type HealthAlert struct {
	Component string
	Status    HealthStatus
	Message   string
	Timestamp time.Time
}

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval      time.Duration
	CheckTimeout       time.Duration
	MemoryThresholdMB  uint64
	GoroutineThreshold int
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval:      30 * time.Second,
		CheckTimeout:       10 * time.Second,
		MemoryThresholdMB:  500,
		GoroutineThreshold: 1000,
	}
}

// HealthMonitor runs registered component checks on demand or on an interval.
type HealthMonitor struct {
	mu sync.RWMutex

	checkInterval      time.Duration
	checkTimeout       time.Duration
	memoryThreshold    uint64
	goroutineThreshold int

	startTime       time.Time
	checkedAt       time.Time
	components      map[string]HealthCheck
	componentHealth map[string]ComponentHealth
	overallStatus   HealthStatus

	onAlert func(alert HealthAlert)
	logger  zerolog.Logger
	now     func() time.Time

	totalChecks     int64
	failedChecks    int64
	panicRecoveries int64
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(config HealthMonitorConfig, logger zerolog.Logger) *HealthMonitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 10 * time.Second
	}
	return &HealthMonitor{
		checkInterval:      config.CheckInterval,
		checkTimeout:       config.CheckTimeout,
		memoryThreshold:    config.MemoryThresholdMB * 1024 * 1024,
		goroutineThreshold: config.GoroutineThreshold,
		startTime:          time.Now(),
		components:         make(map[string]HealthCheck),
		componentHealth:    make(map[string]ComponentHealth),
		overallStatus:      HealthStatusUnknown,
		logger:             logger,
		now:                time.Now,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// SetAlertCallback sets the callback for health alerts.
func (m *HealthMonitor) SetAlertCallback(callback func(HealthAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = callback
}

// Run checks health every interval until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs every registered check plus the runtime checks and returns the result.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components)+2)

	for name, check := range components {
		wg.Add(1)
		go func(n string, c HealthCheck) {
			defer wg.Done()
			defer m.recoverPanic(n, results)

			start := m.now()
			health := c(ctx)
			health.Name = n
			health.LastCheck = m.now()
			if health.Latency == 0 {
				health.Latency = m.now().Sub(start)
			}
			results <- health
		}(name, check)
	}

	results <- m.checkMemory()
	results <- m.checkGoroutines()

	wg.Wait()
	close(results)

	var alerts []HealthAlert
	m.mu.Lock()
	m.totalChecks++
	m.checkedAt = m.now()
	hasUnhealthy := false
	hasDegraded := false

	for health := range results {
		m.componentHealth[health.Name] = health

		switch health.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
			m.failedChecks++
			alerts = append(alerts, HealthAlert{
				Component: health.Name,
				Status:    health.Status,
				Message:   health.Message,
				Timestamp: health.LastCheck,
			})
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}

	switch {
	case hasUnhealthy:
		m.overallStatus = HealthStatusUnhealthy
	case hasDegraded:
		m.overallStatus = HealthStatusDegraded
	default:
		m.overallStatus = HealthStatusHealthy
	}
	onAlert := m.onAlert
	m.mu.Unlock()

	for _, a := range alerts {
		m.logger.Warn().Str("component", a.Component).Str("status", string(a.Status)).Msg(a.Message)
		if onAlert != nil {
			onAlert(a)
		}
	}

	return m.GetHealth()
}

func (m *HealthMonitor) checkMemory() ComponentHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	health := ComponentHealth{
		Name:      "memory",
		LastCheck: m.now(),
		Details: map[string]interface{}{
			"alloc_mb": memStats.Alloc / 1024 / 1024,
			"sys_mb":   memStats.Sys / 1024 / 1024,
			"num_gc":   memStats.NumGC,
		},
	}

	if m.memoryThreshold > 0 && memStats.Alloc > m.memoryThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("Memory usage high: %d MB", memStats.Alloc/1024/1024)
	} else {
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Memory usage: %d MB", memStats.Alloc/1024/1024)
	}
	return health
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	n := runtime.NumGoroutine()

	health := ComponentHealth{
		Name:      "goroutines",
		LastCheck: m.now(),
		Details:   map[string]interface{}{"count": n},
	}

	if m.goroutineThreshold > 0 && n > m.goroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High goroutine count: %d", n)
	} else {
		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Goroutine count: %d", n)
	}
	return health
}

func (m *HealthMonitor) recoverPanic(component string, results chan<- ComponentHealth) {
	if r := recover(); r != nil {
		m.mu.Lock()
		m.panicRecoveries++
		m.mu.Unlock()

		results <- ComponentHealth{
			Name:      component,
			Status:    HealthStatusUnhealthy,
			Message:   fmt.Sprintf("Panic recovered: %v", r),
			LastCheck: m.now(),
		}
	}
}

// GetHealth returns the result of the most recent check.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make([]ComponentHealth, 0, len(m.componentHealth))
	for _, h := range m.componentHealth {
		components = append(components, h)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return SystemHealth{
		Status:          m.overallStatus,
		Uptime:          m.now().Sub(m.startTime),
		StartTime:       m.startTime,
		CheckedAt:       m.checkedAt,
		Components:      components,
		TotalChecks:     m.totalChecks,
		FailedChecks:    m.failedChecks,
		PanicRecoveries: m.panicRecoveries,
	}
}

// GetComponentHealth returns health for a specific component.
func (m *HealthMonitor) GetComponentHealth(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, ok := m.componentHealth[name]
	return health, ok
}

// IsHealthy returns true if the system is healthy.
func (m *HealthMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallStatus == HealthStatusHealthy
}

// TradingHaltCheck reports the risk circuit breaker. A halt is degraded,
// since monitoring and closes keep working; an unreadable status is unhealthy.
func TradingHaltCheck(status func(ctx context.Context) (models.CircuitBreakerStatus, error)) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: "trading"}

		st, err := status(ctx)
		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Breaker status unavailable: %v", err)
			return health
		}

		health.Details = map[string]interface{}{"halted": st.Halted}
		if st.Halted {
			health.Status = HealthStatusDegraded
			health.Message = "Trading halted: " + st.Reason
			if st.TriggeredAt != nil {
				health.Details["triggered_at"] = *st.TriggeredAt
			}
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = "Trading allowed"
		return health
	}
}

// QuoteFreshnessCheck reports the age of the stalest tracked symbol.
func QuoteFreshnessCheck(tracker *store.FreshnessTracker, maxAge time.Duration, now func() time.Time) HealthCheck {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: "market_data"}

		oldest, ok := tracker.Oldest()
		if !ok {
			health.Status = HealthStatusHealthy
			health.Message = "No quotes tracked yet"
			return health
		}

		age := now().Sub(oldest)
		health.Details = map[string]interface{}{"oldest_age": age.String()}
		if age > maxAge {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Stale quotes: oldest is %v old", age.Round(time.Second))
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Quotes fresh within %v", maxAge)
		return health
	}
}

// APIBreakersCheck reports degraded while any per-endpoint breaker is open.
func APIBreakersCheck(registry *Registry) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: "broker_api"}

		var open []string
		states := make(map[string]interface{})
		for _, s := range registry.AllStats() {
			states[s.Name] = string(s.State)
			if s.State == CircuitOpen {
				open = append(open, s.Name)
			}
		}
		health.Details = states

		if len(open) > 0 {
			sort.Strings(open)
			health.Status = HealthStatusDegraded
			health.Message = "Open breakers: " + strings.Join(open, ", ")
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("%d endpoints closed", len(states))
		return health
	}
}

// DatabaseHealthCheck creates a health check for a storage backend.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Ping failed: %v", err)
			return health
		}

		if health.Latency > 100*time.Millisecond {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Storage slow: %v", health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("Storage healthy: %v", health.Latency)
		return health
	}
}
