package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autotrader/internal/errors"
	"autotrader/internal/exchange"
	"autotrader/internal/market"
	"autotrader/internal/models"
	"autotrader/internal/portfolio"
	"autotrader/internal/report"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop against Bybit market data",
		Long: `Run the trading loop. Every loop_interval the engine fetches candles for each
admitted symbol, manages open positions and admits new entries under the
portfolio caps. Ctrl+C flattens every position before exiting.`,
		Example: `  trader run
  trader run --once
  TRADING_MODE=shadow trader run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")
			return runLoop(cmd, app, once)
		},
	}
	cmd.Flags().Bool("once", false, "run a single cycle and exit")
	return cmd
}

func runLoop(cmd *cobra.Command, app *App, once bool) error {
	cfg := app.Config
	output := NewOutput(cmd)
	logger := app.Logger

	client := exchange.NewClient(exchange.Config{
		APIKey:    cfg.Credentials.APIKey,
		APISecret: cfg.Credentials.APISecret,
		Testnet:   cfg.Trading.Testnet,
	}, logger)
	feed := market.NewRetryingFeed(market.NewBybitFeed(client), cfg.Data.RetryAttempts, cfg.Data.RetryDelay, logger)

	deps := engineDeps{feed: feed}
	if cfg.Trading.Mode != models.ModePaper {
		deps.exchange = client
	}
	eng, err := buildEngine(cfg, deps, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		go func() {
			if err := eng.recorder.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for _, r := range eng.rejected {
		output.Warning("%s not admitted: %s", r.Symbol, r.Reason)
	}
	output.Info("Trading %d symbols in %s mode on %s (%s)", len(eng.symbols), cfg.Trading.Mode, client.Environment(), cfg.Trading.Timeframe)

	ticker := time.NewTicker(cfg.Trading.LoopInterval)
	defer ticker.Stop()

	day := time.Now().UTC().Format("2006-01-02")
	for {
		rep, err := eng.orch.Cycle(ctx)
		printCycle(output, rep)
		if err != nil {
			if errors.Is(err, errors.ErrKillSwitch) {
				output.Error("Kill switch: %v", err)
			}
			return err
		}
		if len(eng.orch.Enabled()) == 0 {
			output.Warning("Every symbol is disabled, stopping")
			shutdown(output, eng)
			return nil
		}

		if today := time.Now().UTC().Format("2006-01-02"); today != day {
			prev, _ := time.Parse("2006-01-02", day)
			if err := eng.dailyReport(ctx, cfg, prev); err != nil {
				logger.Warn().Err(err).Str("date", day).Msg("Daily report failed")
			}
			day = today
		}

		if once {
			return renderStatus(output, eng)
		}

		select {
		case <-ticker.C:
		case sig := <-sigChan:
			output.Warning("Shutdown signal (%v) received, flattening positions", sig)
			shutdown(output, eng)
			return nil
		}
	}
}

// shutdown flattens every open position with a fresh context so a
// cancelled loop context cannot strand positions.
func shutdown(output *Output, eng *engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	trades := eng.orch.Shutdown(ctx)
	if !output.IsJSON() {
		for _, t := range trades {
			output.Printf("  closed %s %s %s\n", t.Symbol, t.Side, output.FormatPnL(t.PnL))
		}
	}
	renderStatus(output, eng)
}

func renderStatus(output *Output, eng *engine) error {
	if output.IsJSON() {
		return output.JSON(eng.orch.Status())
	}
	report.RenderStatus(output.Writer(), eng.orch.Status())
	return nil
}

func printCycle(output *Output, rep *portfolio.Report) {
	if rep == nil || output.IsJSON() {
		return
	}
	for _, t := range rep.Trades {
		output.Printf("%s  exit  %-10s %-5s %-14s %s\n",
			rep.Time.UTC().Format("2006-01-02 15:04"), t.Symbol, t.Side, t.ExitReason, output.FormatPnL(t.PnL))
	}
	for _, sym := range rep.Opened {
		output.Printf("%s  entry %s\n", rep.Time.UTC().Format("2006-01-02 15:04"), sym)
	}
	for _, sym := range rep.Disabled {
		output.Warning("%s disabled", sym)
	}
	output.Dim("equity %.2f, %d open", rep.Equity, rep.Open)
}
