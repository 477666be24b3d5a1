package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spread-trader/internal/models"
	"spread-trader/internal/store"
)

// addTradingCommands adds the recommendation, trade and sizing commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRecommendationsCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newSizeCmd(app))
}

func newRecommendationsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "List, approve and reject recommendations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recommendations",
		Example: `  trader recs list
  trader recs list --status pending --limit 5`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			recs, err := app.Ledger.ListRecommendations(cmd.Context(), store.RecommendationFilter{
				Status: models.RecommendationStatus(status),
				Limit:  limit,
			})
			if err != nil {
				output.Error("Failed to list recommendations: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(recs)
			}
			if len(recs) == 0 {
				output.Info("No recommendations")
				return nil
			}
			displayRecommendations(output, recs)
			return nil
		}),
	}
	list.Flags().String("status", string(models.RecommendationPending), "filter by status (empty for all)")
	list.Flags().Int("limit", 20, "maximum rows")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a recommendation and follow its order to a fill",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			trade, err := app.Approvals.Approve(cmd.Context(), args[0])
			if err != nil {
				output.Error("Approve failed: %v", err)
				return err
			}

			if trade.Status == models.TradePendingFill {
				output.Info("Order %s submitted, following fill...", trade.BrokerOrderID)
				ctx, cancel := context.WithTimeout(cmd.Context(), app.Config.Server.FollowTimeout)
				defer cancel()
				result, outcome, err := app.Approvals.FollowFill(ctx, *trade)
				if err != nil {
					output.Error("Fill follow failed: %v", err)
					return err
				}
				output.Printf("  Adjustments: %d, outcome: %s\n", result.Adjustments, outcome)
				if trade, err = app.Ledger.GetTrade(cmd.Context(), trade.ID); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(trade)
			}
			displayTrade(output, trade)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			if err := app.Approvals.Reject(cmd.Context(), args[0]); err != nil {
				output.Error("Reject failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"id": args[0], "status": string(models.RecommendationRejected)})
			}
			output.Success("✓ Recommendation %s rejected", args[0])
			return nil
		}),
	})

	return cmd
}

func displayRecommendations(output *Output, recs []models.Recommendation) {
	table := NewTable(output, "ID", "Underlying", "Type", "Strikes", "Expiry", "Credit", "Max Loss", "Qty", "Score", "Conf", "Status", "Expires")
	for _, r := range recs {
		table.AddRow(
			r.ID,
			r.Underlying,
			string(r.SpreadType),
			fmt.Sprintf("%.0f/%.0f", r.ShortStrike, r.LongStrike),
			FormatDate(r.Expiration, time.UTC),
			fmt.Sprintf("%.2f", r.Credit),
			FormatCurrency(r.MaxLoss),
			fmt.Sprintf("%d", r.SuggestedContracts),
			fmt.Sprintf("%.0f", r.Score),
			string(r.Confidence),
			string(r.Status),
			FormatDateTime(r.ExpiresAt, time.Local),
		)
	}
	table.Render()
	for _, r := range recs {
		if r.Thesis != "" {
			output.Dim("  %s: %s", TruncateString(r.ID, 8), TruncateString(r.Thesis, 100))
		}
	}
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List, inspect and close trades",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		Example: `  trader trades list --status open
  trader trades list --underlying SPY --limit 10`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			status, _ := cmd.Flags().GetString("status")
			underlying, _ := cmd.Flags().GetString("underlying")
			limit, _ := cmd.Flags().GetInt("limit")
			trades, err := app.Ledger.ListTrades(cmd.Context(), store.TradeFilter{
				Status:     models.TradeStatus(status),
				Underlying: underlying,
				Limit:      limit,
			})
			if err != nil {
				output.Error("Failed to list trades: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Info("No trades")
				return nil
			}
			displayTrades(output, trades)
			return nil
		}),
	}
	list.Flags().String("status", "", "filter by status")
	list.Flags().String("underlying", "", "filter by underlying")
	list.Flags().Int("limit", 20, "maximum rows")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			trade, err := app.Ledger.GetTrade(cmd.Context(), args[0])
			if err != nil {
				output.Error("Failed to get trade: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(trade)
			}
			displayTrade(output, trade)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "close <id>",
		Short: "Close an open trade at the natural price",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), app.Config.Server.FollowTimeout)
			defer cancel()
			output.Info("Closing trade %s...", args[0])
			trade, err := app.Approvals.Close(ctx, args[0])
			if err != nil {
				output.Error("Close failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(trade)
			}
			displayTrade(output, trade)
			return nil
		}),
	})

	return cmd
}

func displayTrades(output *Output, trades []models.Trade) {
	table := NewTable(output, "ID", "Underlying", "Type", "Strikes", "Expiry", "Qty", "Credit", "Status", "P&L")
	var realized float64
	for _, t := range trades {
		pnl := "-"
		if t.ProfitLoss != nil {
			realized += *t.ProfitLoss
			pnl = output.FormatPnL(*t.ProfitLoss)
		}
		table.AddRow(
			t.ID,
			t.Underlying,
			string(t.SpreadType),
			fmt.Sprintf("%.0f/%.0f", t.ShortStrike, t.LongStrike),
			FormatDate(t.Expiration, time.UTC),
			fmt.Sprintf("%d", t.Contracts),
			fmt.Sprintf("%.2f", t.EntryCredit),
			string(t.Status),
			pnl,
		)
	}
	table.Render()
	output.Printf("\n  Realized: %s\n", output.FormatPnL(realized))
}

func displayTrade(output *Output, t *models.Trade) {
	output.Bold("Trade %s", t.ID)
	output.Printf("  Spread:    %s %s %.0f/%.0f exp %s\n", t.Underlying, t.SpreadType, t.ShortStrike, t.LongStrike, FormatDate(t.Expiration, time.UTC))
	output.Printf("  Contracts: %d\n", t.Contracts)
	output.Printf("  Credit:    %.2f\n", t.EntryCredit)
	output.Printf("  Max Loss:  %s\n", FormatCurrency(t.MaxLoss()))
	output.Printf("  Status:    %s\n", t.Status)
	if t.BrokerOrderID != "" {
		output.Printf("  Order:     %s\n", t.BrokerOrderID)
	}
	if t.OpenedAt != nil {
		output.Printf("  Opened:    %s\n", FormatDateTime(*t.OpenedAt, time.Local))
	}
	if t.ClosedAt != nil {
		output.Printf("  Closed:    %s (%s)\n", FormatDateTime(*t.ClosedAt, time.Local), t.ExitReason)
	}
	if t.ExitDebit != nil {
		output.Printf("  Exit:      %.2f\n", *t.ExitDebit)
	}
	if t.ProfitLoss != nil {
		output.Printf("  P&L:       %s\n", output.FormatPnL(*t.ProfitLoss))
	}
	if t.Lesson != "" {
		output.Dim("  Lesson: %s", t.Lesson)
	}
}

func newSizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size",
		Short: "Size a spread against the account and open risk",
		Example: `  trader size --width 5 --credit 1.50
  trader size --width 10 --credit 2.10 --equity 50000 --vix 32`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			ctx := cmd.Context()
			width, _ := cmd.Flags().GetFloat64("width")
			credit, _ := cmd.Flags().GetFloat64("credit")
			equity, _ := cmd.Flags().GetFloat64("equity")

			if equity <= 0 {
				account, err := app.Broker.GetAccount(ctx)
				if err != nil {
					output.Error("Failed to get account: %v", err)
					return err
				}
				equity = account.Equity
			}

			var vix *float64
			if cmd.Flags().Changed("vix") {
				v, _ := cmd.Flags().GetFloat64("vix")
				vix = &v
			} else if v, err := app.Broker.GetVIX(ctx); err == nil {
				vix = v
			}

			positions, err := app.Ledger.GetPositions(ctx)
			if err != nil {
				output.Error("Failed to load positions: %v", err)
				return err
			}

			maxLoss := (width - credit) * models.ContractMultiplier
			result := app.Sizer.CalculateSizeForMaxLoss(maxLoss, equity, positions, vix)
			heat := app.Sizer.PortfolioHeat(equity, positions)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"size": result, "heat": heat})
			}
			output.Bold("Position Size")
			output.Printf("  Equity:        %s\n", FormatCurrency(equity))
			output.Printf("  Max Loss/Ct:   %s\n", FormatCurrency(maxLoss))
			output.Printf("  Contracts:     %d\n", result.Contracts)
			output.Printf("  Risk:          %s (%s)\n", FormatCurrency(result.RiskAmount), FormatRatio(result.RiskPercent))
			if result.Constraint != "" {
				output.Printf("  Bound by:      %s\n", result.Constraint)
			}
			if result.Reason != "" {
				output.Dim("  %s", result.Reason)
			}
			output.Printf("  Heat:          %s of %s\n", FormatRatio(heat.HeatPercent), FormatRatio(heat.MaxHeatPercent))
			return nil
		}),
	}
	cmd.Flags().Float64("width", 5, "strike width in dollars")
	cmd.Flags().Float64("credit", 0, "credit per share")
	cmd.Flags().Float64("equity", 0, "account equity (default: from the broker)")
	cmd.Flags().Float64("vix", 0, "volatility index (default: from the broker)")
	_ = cmd.MarkFlagRequired("credit")
	return cmd
}
