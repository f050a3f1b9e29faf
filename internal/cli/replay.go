package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/errors"
	"autotrader/internal/market"
	"autotrader/internal/models"
	"autotrader/internal/performance"
	"autotrader/internal/report"
)

func newReplayCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay CSV candles through the engine in paper mode",
		Long: `Replay historical candles bar by bar through the full engine with paper
fills. Each symbol reads <dir>/<BASE_QUOTE>_<timeframe>.csv with columns
timestamp,open,high,low,close,volume.`,
		Example: `  trader replay --dir data/candles
  trader replay --dir data/candles --trade-log replay.csv --xlsx replay.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			tradeLog, _ := cmd.Flags().GetString("trade-log")
			xlsx, _ := cmd.Flags().GetString("xlsx")
			return runReplay(cmd, app, dir, tradeLog, xlsx)
		},
	}
	cmd.Flags().String("dir", "", "candle directory (default: data.replay_dir)")
	cmd.Flags().String("trade-log", "", "append replayed trades to this CSV")
	cmd.Flags().String("xlsx", "", "write a spreadsheet report to this path")
	return cmd
}

func runReplay(cmd *cobra.Command, app *App, dir, tradeLog, xlsx string) error {
	cfg := *app.Config
	output := NewOutput(cmd)
	logger := app.Logger

	if dir == "" {
		dir = cfg.Data.ReplayDir
	}
	if dir == "" {
		return errors.NewValidationError("data.replay_dir", dir, "replay needs --dir or data.replay_dir")
	}

	// Replays never touch the exchange or the live trade store.
	cfg.Trading.Mode = models.ModePaper
	cfg.Storage.DBPath = ""
	cfg.Storage.TradeLog = tradeLog
	cfg.Notifications.Enabled = false

	feed, err := market.LoadReplay(dir, cfg.Trading.Symbols, cfg.Trading.Timeframe, cfg.Data.Lookback)
	if err != nil {
		return err
	}
	bar, err := market.TimeframeDuration(cfg.Trading.Timeframe)
	if err != nil {
		return err
	}
	// The replay clock sits at the close of the newest visible bar.
	clock := func() time.Time { return feed.Now().Add(bar) }

	eng, err := buildEngine(&cfg, engineDeps{feed: feed, clock: clock}, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	output.Info("Replaying %d bars for %v", feed.Remaining(), eng.symbols)

	var trades []models.Trade
	var cycleErr error
	for {
		rep, err := eng.orch.Cycle(ctx)
		if rep != nil {
			trades = append(trades, rep.Trades...)
		}
		if err != nil {
			cycleErr = err
			break
		}
		if !feed.Step() {
			break
		}
	}
	trades = append(trades, eng.orch.Shutdown(ctx)...)

	summary := performance.Summarize(trades)
	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"summary": summary,
			"daily":   performance.DailySummaries(trades),
			"equity":  eng.orch.Equity(),
		})
	}

	report.RenderSummary(output.Writer(), summary)
	if daily := performance.DailySummaries(trades); len(daily) > 0 {
		report.RenderDaily(output.Writer(), daily)
	}
	if xlsx != "" {
		if err := report.WriteXLSX(xlsx, trades); err != nil {
			return fmt.Errorf("writing %s: %w", xlsx, err)
		}
		output.Success("Wrote %s", xlsx)
	}

	if cycleErr != nil {
		output.Error("Replay stopped: %v", cycleErr)
		return cycleErr
	}
	output.Success("Replay finished, equity %.2f", eng.orch.Equity())
	return nil
}
