package trading

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/logging"
)

// ScheduleConfig sets when the long-running process scans, monitors and
// summarises. Times are HH:MM in the trading timezone, weekdays only.
type ScheduleConfig struct {
	ScanTimes       []string      `mapstructure:"scan_times"`
	EODTime         string        `mapstructure:"eod_time"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	// Grace is how late a daily slot may still run, e.g. after a restart.
	Grace time.Duration `mapstructure:"grace"`
}

// DefaultScheduleConfig returns the default schedule.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		ScanTimes:       []string{"10:35", "13:00", "15:30"},
		EODTime:         "16:15",
		MonitorInterval: 5 * time.Minute,
		Grace:           30 * time.Minute,
	}
}

// Validate checks the slot times parse.
func (c ScheduleConfig) Validate() error {
	for _, t := range append(append([]string{}, c.ScanTimes...), c.EODTime) {
		if _, err := parseClock(t); err != nil {
			return err
		}
	}
	if c.MonitorInterval <= 0 || c.Grace <= 0 {
		return fmt.Errorf("monitor_interval and grace must be positive")
	}
	return nil
}

// Job names.
const (
	JobScan    = "scan"
	JobMonitor = "monitor"
	JobEOD     = "eod"
)

// JobFunc runs one scheduled job.
type JobFunc func(ctx context.Context) error

type slot struct {
	job    string
	offset time.Duration // since local midnight
}

// Scheduler fires scans and the EOD summary at fixed local times and the
// position monitor on an interval. It keeps one goroutine; jobs run in order.
type Scheduler struct {
	slots       []slot
	interval    time.Duration
	grace       time.Duration
	loc         *time.Location
	jobs        map[string]JobFunc
	ran         map[string]string // slot key -> local date last run
	lastMonitor time.Time
	logger      zerolog.Logger
	now         func() time.Time
}

// NewScheduler creates a scheduler. A nil job is never run.
func NewScheduler(cfg ScheduleConfig, loc *time.Location, scan, monitor, eod JobFunc, logger zerolog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	var slots []slot
	for _, t := range cfg.ScanTimes {
		off, _ := parseClock(t)
		slots = append(slots, slot{job: JobScan, offset: off})
	}
	off, _ := parseClock(cfg.EODTime)
	slots = append(slots, slot{job: JobEOD, offset: off})
	sort.Slice(slots, func(i, j int) bool { return slots[i].offset < slots[j].offset })

	return &Scheduler{
		slots:    slots,
		interval: cfg.MonitorInterval,
		grace:    cfg.Grace,
		loc:      loc,
		jobs:     map[string]JobFunc{JobScan: scan, JobMonitor: monitor, JobEOD: eod},
		ran:      make(map[string]string),
		logger:   logging.WithComponent(logger, "scheduler"),
		now:      time.Now,
	}, nil
}

// WithClock overrides the clock.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Due returns the jobs to run at now and marks them as run. Daily slots older
// than the grace window are marked without running.
func (s *Scheduler) Due(now time.Time) []string {
	local := now.In(s.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return nil
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	date := local.Format("2006-01-02")

	var due []string
	for _, sl := range s.slots {
		at := midnight.Add(sl.offset)
		if local.Before(at) {
			continue
		}
		key := fmt.Sprintf("%s@%s", sl.job, sl.offset)
		if s.ran[key] == date {
			continue
		}
		s.ran[key] = date
		if local.Sub(at) > s.grace {
			s.logger.Debug().Str("job", sl.job).Time("slot", at).Msg("Skipping missed slot")
			continue
		}
		due = append(due, sl.job)
	}

	if s.lastMonitor.IsZero() || now.Sub(s.lastMonitor) >= s.interval {
		s.lastMonitor = now
		due = append(due, JobMonitor)
	}
	return due
}

// Tick runs every due job.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, name := range s.Due(s.now()) {
		job := s.jobs[name]
		if job == nil {
			continue
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			continue
		}
		s.logger.Info().Str("job", name).Dur("took", time.Since(start)).Msg("Scheduled job finished")
	}
}

// Run ticks every poll until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func parseClock(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("bad time of day %q: %w", hhmm, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
