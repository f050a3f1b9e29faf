package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/config"
	"autotrader/internal/journal"
	"autotrader/internal/models"
	"autotrader/internal/performance"
	"autotrader/internal/report"
	"autotrader/internal/store"
)

type reportOptions struct {
	csvPath string
	symbol  string
	from    string
	to      string
	xlsx    string
	save    bool
	trades  bool
}

func newReportCmd(app *App) *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise recorded trades per symbol and day",
		Long: `Build the daily performance report (trades, wins, losses, win rate, net pnl
and max drawdown per symbol per day) from the trade store or a CSV trade log.`,
		Example: `  trader report
  trader report --csv logs/trades.csv --from 2024-06-01
  trader report --symbol BTC/USDT --trades --xlsx june.xlsx
  trader report --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, app.Config, opts)
		},
	}
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "read trades from this CSV log instead of the store")
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "only this symbol")
	cmd.Flags().StringVar(&opts.from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "also write a spreadsheet to this path")
	cmd.Flags().BoolVar(&opts.save, "save", false, "write the daily report to storage.daily_report and the store")
	cmd.Flags().BoolVar(&opts.trades, "trades", false, "list individual trades")
	return cmd
}

func runReport(cmd *cobra.Command, cfg *config.Config, opts reportOptions) error {
	output := NewOutput(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	filter, err := opts.filter()
	if err != nil {
		return err
	}

	var trades []models.Trade
	var st *store.SQLiteStore
	if opts.csvPath != "" {
		all, err := journal.ReadTrades(opts.csvPath)
		if err != nil {
			return err
		}
		trades = applyFilter(all, filter)
	} else {
		st, err = store.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if trades, err = st.Trades(ctx, filter); err != nil {
			return err
		}
	}

	daily := performance.DailySummaries(trades)
	summary := performance.Summarize(trades)

	if opts.save {
		if err := saveDaily(ctx, cfg, st, daily); err != nil {
			return err
		}
	}
	if opts.xlsx != "" {
		if err := report.WriteXLSX(opts.xlsx, trades); err != nil {
			return fmt.Errorf("writing %s: %w", opts.xlsx, err)
		}
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"summary": summary,
			"daily":   daily,
		})
	}

	if len(trades) == 0 {
		output.Warning("No trades recorded")
		return nil
	}
	if opts.trades {
		report.RenderTrades(output.Writer(), trades)
	}
	report.RenderDaily(output.Writer(), daily)
	report.RenderSummary(output.Writer(), summary)
	output.Printf("Net P&L: %s\n", output.FormatPnL(summary.NetPnL))
	if opts.save {
		output.Success("Saved %d daily rows", len(daily))
	}
	if opts.xlsx != "" {
		output.Success("Wrote %s", opts.xlsx)
	}
	return nil
}

func saveDaily(ctx context.Context, cfg *config.Config, st *store.SQLiteStore, daily []models.DailySummary) error {
	if cfg.Storage.DailyReport != "" {
		if err := journal.WriteDailyReport(cfg.Storage.DailyReport, daily); err != nil {
			return err
		}
	}
	if st == nil {
		if cfg.Storage.DBPath == "" {
			return nil
		}
		var err error
		if st, err = store.NewSQLiteStore(cfg.Storage.DBPath); err != nil {
			return err
		}
		defer st.Close()
	}
	return st.SaveDailySummaries(ctx, daily)
}

func (o reportOptions) filter() (store.TradeFilter, error) {
	f := store.TradeFilter{Symbol: o.symbol}
	if o.from != "" {
		t, err := time.Parse("2006-01-02", o.from)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.StartDate = t
	}
	if o.to != "" {
		t, err := time.Parse("2006-01-02", o.to)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.EndDate = t.Add(24*time.Hour - time.Nanosecond)
	}
	return f, nil
}

// applyFilter mirrors the store's filter for trades read from CSV.
func applyFilter(trades []models.Trade, f store.TradeFilter) []models.Trade {
	var out []models.Trade
	for _, t := range trades {
		if f.Symbol != "" && t.Symbol != f.Symbol {
			continue
		}
		if !f.StartDate.IsZero() && t.Timestamp.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && t.Timestamp.After(f.EndDate) {
			continue
		}
		out = append(out, t)
	}
	return out
}
