package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"spread-trader/internal/models"
	"spread-trader/internal/trading"
)

// addJobCommands adds the scan, monitor, reconcile and end-of-day jobs.
func addJobCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newMonitorCmd(app))
	rootCmd.AddCommand(newReconcileCmd(app))
	rootCmd.AddCommand(newEODCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan underlyings for credit spreads",
		Long: `Run one scan: fetch option chains for the configured underlyings, screen
and score credit spreads, size them and store the best as recommendations.`,
		Example: `  trader scan
  trader scan --json`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			result, err := app.Pipeline.Run(cmd.Context())
			if err != nil {
				output.Error("Scan failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			displayScan(output, result)
			return nil
		}),
	}
}

func displayScan(output *Output, result *trading.ScanResult) {
	output.Bold("Scan %s", result.RunID)
	output.Printf("  Risk: %s", output.RiskLevel(result.RiskState.Level))
	if result.RiskState.Reason != "" {
		output.Printf(" (%s)", result.RiskState.Reason)
	}
	output.Println()
	if result.Skipped != "" {
		output.Warning("Skipped: %s", result.Skipped)
		return
	}
	output.Printf("  Scanned %d underlyings, %d candidates\n", len(result.Scanned), result.Candidates)
	for _, symbol := range sortedKeys(result.Failed) {
		output.Warning("  %s: %s", symbol, result.Failed[symbol])
	}
	output.Println()

	if len(result.Recommendations) == 0 {
		output.Info("No recommendations")
		return
	}
	displayRecommendations(output, result.Recommendations)
	if len(result.Trades) > 0 {
		output.Println()
		output.Success("✓ Auto-approved %d trades", len(result.Trades))
	}
}

func newMonitorCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Mark open trades and apply exit rules",
		Long: `Reconcile pending fills, revalue every open trade from current quotes,
evaluate the risk state and close or alert on triggered exits.`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			result, err := app.Monitor.Run(cmd.Context())
			if err != nil {
				output.Error("Monitor failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			displayMonitor(output, result)
			return nil
		}),
	}
}

func displayMonitor(output *Output, result *trading.MonitorResult) {
	if result.Skipped != "" {
		output.Warning("Skipped: %s", result.Skipped)
		return
	}
	if result.RiskState != nil {
		output.Printf("Risk: %s\n", output.RiskLevel(result.RiskState.Level))
	}
	if result.Reconcile != nil && result.Reconcile.Checked > 0 {
		displayReconcile(output, result.Reconcile)
	}
	output.Printf("Checked %d open trades\n\n", result.Checked)

	if len(result.Positions) > 0 {
		table := NewTable(output, "Trade", "Underlying", "Strikes", "Qty", "Close", "Value", "Unrealized")
		var total float64
		for _, p := range result.Positions {
			total += p.UnrealizedPnL
			table.AddRow(
				TruncateString(p.TradeID, 8),
				p.Underlying,
				fmt.Sprintf("%.0f/%.0f", p.ShortStrike, p.LongStrike),
				fmt.Sprintf("%d", p.Contracts),
				fmt.Sprintf("%.2f", p.CloseCost),
				FormatCurrency(p.CurrentValue),
				output.FormatPnL(p.UnrealizedPnL),
			)
		}
		table.Render()
		output.Printf("\n  Total unrealized: %s\n", output.FormatPnL(total))
	}

	if result.Heat != nil {
		output.Printf("  Portfolio heat:   %s of %s\n", FormatRatio(result.Heat.HeatPercent), FormatRatio(result.Heat.MaxHeatPercent))
	}

	for _, ex := range result.Exits {
		switch {
		case ex.Error != "":
			output.Error("  %s %s: %s", TruncateString(ex.TradeID, 8), ex.Reason, ex.Error)
		case ex.Executed:
			output.Success("  %s closed (%s): %s", TruncateString(ex.TradeID, 8), ex.Reason, ex.Message)
		default:
			output.Warning("  %s exit signal (%s): %s", TruncateString(ex.TradeID, 8), ex.Reason, ex.Message)
		}
	}
	for _, id := range sortedKeys(result.Errors) {
		output.Error("  %s: %s", TruncateString(id, 8), result.Errors[id])
	}
}

func newReconcileCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check pending fills against the broker",
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			report, err := app.Coordinator.Reconcile(cmd.Context())
			if report == nil {
				output.Error("Reconcile failed: %v", err)
				return err
			}
			if output.IsJSON() {
				if jsonErr := output.JSON(report); jsonErr != nil {
					return jsonErr
				}
				return err
			}
			displayReconcile(output, report)
			if err != nil {
				output.Warning("Some trades could not be checked: %v", err)
			}
			return err
		}),
	}
}

func displayReconcile(output *Output, report *trading.ReconcileReport) {
	if report.Checked == 0 {
		output.Info("No pending fills")
		return
	}
	var parts []string
	for _, o := range []trading.ReconcileOutcome{
		trading.OutcomeFilled, trading.OutcomePending, trading.OutcomeExpired,
		trading.OutcomeMismatch, trading.OutcomeSkipped,
	} {
		if n := report.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	output.Printf("Reconciled %d pending fills: %s\n", report.Checked, strings.Join(parts, ", "))
	if report.Count(trading.OutcomeMismatch) > 0 {
		output.Warning("Mismatches need manual review")
	}
}

func newEODCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "eod",
		Short: "Record the end-of-day summary",
		Long: `Record today's performance, reflect on trades closed today, archive a
snapshot and send the daily summary.`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			perf, err := app.EOD.Run(cmd.Context())
			if err != nil {
				output.Error("End-of-day summary failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(perf)
			}
			displayPerformance(output, perf)
			return nil
		}),
	}
}

func displayPerformance(output *Output, perf *models.DailyPerformance) {
	output.Bold("Daily Summary %s", perf.Date)
	output.Printf("  Balance:      %s -> %s\n", FormatCurrency(perf.StartingBalance), FormatCurrency(perf.EndingBalance))
	output.Printf("  Realized P&L: %s\n", output.FormatPnL(perf.RealizedPnL))
	output.Printf("  Opened:       %d\n", perf.TradesOpened)
	output.Printf("  Closed:       %d (%d won, %d lost)\n", perf.TradesClosed, perf.WinCount, perf.LossCount)
	if perf.WinCount+perf.LossCount > 0 {
		output.Printf("  Win rate:     %s\n", FormatRatio(perf.WinRate()))
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
