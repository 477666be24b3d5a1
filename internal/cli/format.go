// Package cli provides the command-line interface for the spread trader.
package cli

import (
	"fmt"
	"time"

	"spread-trader/pkg/utils"
)

// FormatCurrency formats a dollar amount with thousands separators.
func FormatCurrency(amount float64) string {
	return utils.FormatUSD(amount)
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	return utils.FormatPnL(pnl)
}

// FormatRatio formats a fraction as a percentage: 0.02 -> "2.00%".
func FormatRatio(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}

// FormatPremium formats a net limit price as credit or debit per share.
func FormatPremium(limit float64) string {
	if limit < 0 {
		return fmt.Sprintf("%.2f cr", -limit)
	}
	return fmt.Sprintf("%.2f db", limit)
}

// FormatDate formats a date in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("2006-01-02")
}

// FormatDateTime formats a datetime in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04 MST")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
