package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spread-trader/internal/models"
	"spread-trader/internal/resilience"
)

// addRiskCommands adds the circuit breaker and health commands.
func addRiskCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBreakerCmd(app))
	rootCmd.AddCommand(newHealthCmd(app))
}

func newBreakerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect, trip and reset the trading circuit breaker",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the halt flag and today's risk counters",
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			ctx := cmd.Context()
			st, err := app.Breaker.Status(ctx)
			if err != nil {
				output.Error("Failed to read breaker: %v", err)
				return err
			}
			daily, err := app.Stats.Daily(ctx)
			if err != nil {
				return err
			}
			weekly, err := app.Stats.Weekly(ctx)
			if err != nil {
				return err
			}
			apiErrors, err := app.Stats.APIErrorCount(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"status":     st,
					"daily":      daily,
					"weekly":     weekly,
					"api_errors": apiErrors,
				})
			}
			displayBreaker(output, st)
			output.Println()
			output.Bold("Today (%s)", daily.Date)
			output.Printf("  Starting equity: %s\n", FormatCurrency(daily.StartingEquity))
			output.Printf("  Trades:          %d\n", daily.TradesCount)
			output.Printf("  Realized P&L:    %s\n", output.FormatPnL(daily.RealizedPnL))
			output.Printf("  Rapid loss:      %s\n", FormatCurrency(daily.RapidLossAmount))
			output.Printf("  API errors:      %d\n", apiErrors)
			output.Bold("Week %s", weekly.Week)
			output.Printf("  Starting equity: %s\n", FormatCurrency(weekly.StartingEquity))
			return nil
		}),
	})

	trip := &cobra.Command{
		Use:   "trip",
		Short: "Halt new trades",
		Example: `  trader breaker trip --reason "FOMC day"`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			reason, _ := cmd.Flags().GetString("reason")
			tripped, err := app.Breaker.Trip(cmd.Context(), reason)
			if err != nil {
				output.Error("Trip failed: %v", err)
				return err
			}
			st, err := app.Breaker.Status(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"tripped": tripped, "status": st})
			}
			if !tripped {
				output.Warning("Already halted")
			}
			displayBreaker(output, st)
			return nil
		}),
	}
	trip.Flags().String("reason", "", "reason recorded with the halt")
	cmd.AddCommand(trip)

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Resume trading after a halt",
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			if err := app.Breaker.Reset(cmd.Context()); err != nil {
				output.Error("Reset failed: %v", err)
				return err
			}
			api, _ := cmd.Flags().GetBool("api")
			if api {
				app.APIBreakers.ResetAll()
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"halted": false})
			}
			output.Success("✓ Trading resumed")
			return nil
		}),
	}
	reset.Flags().Bool("api", false, "also reset the broker API breakers")
	cmd.AddCommand(reset)

	return cmd
}

func displayBreaker(output *Output, st models.CircuitBreakerStatus) {
	if !st.Halted {
		output.Printf("Trading: %s\n", output.RiskLevel(models.RiskNormal))
		return
	}
	output.Printf("Trading: %s\n", output.RiskLevel(models.RiskHalted))
	output.Printf("  Reason: %s\n", st.Reason)
	if st.TriggeredAt != nil {
		output.Printf("  Since:  %s (%s ago)\n", FormatDateTime(*st.TriggeredAt, time.Local), FormatDuration(time.Since(*st.TriggeredAt)))
	}
}

func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the health checks once",
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			h := app.Health.Check(cmd.Context())
			if output.IsJSON() {
				return output.JSON(h)
			}
			output.Printf("Status: %s\n\n", healthLabel(output, h.Status))
			table := NewTable(output, "Component", "Status", "Latency", "Message")
			for _, c := range h.Components {
				table.AddRow(c.Name, healthLabel(output, c.Status), c.Latency.Round(time.Millisecond).String(), c.Message)
			}
			table.Render()
			return nil
		}),
	}
}

func healthLabel(output *Output, s resilience.HealthStatus) string {
	text := strings.ToUpper(string(s))
	switch s {
	case resilience.HealthStatusHealthy:
		return output.Green(text)
	case resilience.HealthStatusDegraded:
		return output.Yellow(text)
	case resilience.HealthStatusUnhealthy:
		return output.Red(text)
	}
	return text
}
