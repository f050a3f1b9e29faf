package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/broker"
	"autotrader/internal/config"
	"autotrader/internal/exchange"
	"autotrader/internal/indicators"
	"autotrader/internal/journal"
	"autotrader/internal/logging"
	"autotrader/internal/market"
	"autotrader/internal/metrics"
	"autotrader/internal/model"
	"autotrader/internal/notify"
	"autotrader/internal/performance"
	"autotrader/internal/portfolio"
	"autotrader/internal/risk"
	"autotrader/internal/runner"
	"autotrader/internal/store"
	"autotrader/internal/strategy"
	"autotrader/internal/universe"
)

// maxStaleBars is how many bars the newest candle may lag the clock.
const maxStaleBars = 3

// engineDeps are the external collaborators of one engine instance.
type engineDeps struct {
	feed     market.Feed
	exchange *exchange.Client // nil in paper replay
	clock    func() time.Time
}

// engine is a fully wired orchestrator plus the resources it owns.
type engine struct {
	orch     *portfolio.Orchestrator
	store    *store.SQLiteStore
	journal  *journal.CSVJournal
	recorder *metrics.Recorder
	notifier notify.Notifier
	symbols  []string
	rejected []portfolio.Rejection
	logger   zerolog.Logger
}

// buildEngine loads and admits models, then wires one runner per admitted
// symbol into an orchestrator with the configured sinks.
func buildEngine(cfg *config.Config, deps engineDeps, logger zerolog.Logger) (*engine, error) {
	if deps.clock == nil {
		deps.clock = time.Now
	}
	logger = logging.WithComponent(logger, "engine")

	candidates, rejected := loadCandidates(cfg, deps.feed, logger)
	admitted, more, err := portfolio.Admit(candidates, model.Thresholds{
		MinF1:        cfg.Portfolio.MinF1,
		MinPrecision: cfg.Portfolio.MinPrecision,
		MinRecall:    cfg.Portfolio.MinRecall,
	})
	rejected = append(rejected, more...)
	for _, r := range rejected {
		logger.Warn().Str("symbol", r.Symbol).Str("reason", r.Reason).Msg("Symbol not admitted")
	}
	if err != nil {
		return nil, err
	}

	e := &engine{rejected: rejected, logger: logger}

	var runners []*runner.Runner
	for _, c := range admitted {
		r, err := newRunner(cfg, deps, c, logger)
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
		e.symbols = append(e.symbols, c.Symbol)
	}

	opts := []portfolio.Option{portfolio.WithClock(deps.clock)}

	if cfg.Storage.DBPath != "" {
		st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening trade store: %w", err)
		}
		e.store = st
		opts = append(opts, portfolio.WithTradeSinks(st))
	}
	if cfg.Storage.TradeLog != "" {
		j, err := journal.NewCSVJournal(cfg.Storage.TradeLog)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("opening trade log: %w", err)
		}
		e.journal = j
		opts = append(opts, portfolio.WithTradeSinks(j))
	}

	e.recorder = metrics.NewRecorder()
	opts = append(opts, portfolio.WithRecorder(e.recorder))

	e.notifier = notify.New(cfg.Notifications)
	opts = append(opts, portfolio.WithNotifier(e.notifier))

	if cfg.Portfolio.TopK > 0 {
		sel := universe.NewSelector(universe.DefaultConfig(cfg.Trading.Timeframe), deps.feed, logger)
		opts = append(opts, portfolio.WithRanker(sel))
	}

	guard := risk.NewMarketGuard(cfg.Risk.PortfolioDailyDrawdownPct, cfg.Risk.PortfolioMaxConsecutiveLosses)
	supervisor := risk.NewSupervisor(risk.SupervisorConfig{
		Window:        cfg.Supervisor.Window,
		MaxDrawdown:   cfg.Supervisor.MaxDrawdown,
		MinWinRate:    cfg.Supervisor.MinWinRate,
		StrongWinRate: cfg.Supervisor.StrongWinRate,
	})

	e.orch = portfolio.New(portfolio.Config{
		StartingBalance:        cfg.Trading.StartingBalance,
		MinBalance:             cfg.Trading.MinBalance,
		GlobalMaxDrawdownPct:   cfg.Risk.GlobalMaxDrawdownPct,
		RiskPerTrade:           cfg.Risk.RiskPerTrade,
		MaxPositionNotionalPct: cfg.Risk.MaxPositionNotionalPct,
		MaxActivePositions:     cfg.Portfolio.MaxActivePositions,
		AllocationPct:          cfg.Portfolio.AllocationPct,
		MaxConsecutiveErrors:   cfg.Portfolio.MaxConsecutiveErrors,
		TopK:                   cfg.Portfolio.TopK,
		RefreshInterval:        cfg.Portfolio.RefreshInterval,
	}, runners, guard, supervisor, logger, opts...)

	logger.Info().
		Strs("symbols", e.symbols).
		Str("mode", string(cfg.Trading.Mode)).
		Float64("balance", cfg.Trading.StartingBalance).
		Msg("Engine ready")
	return e, nil
}

// loadCandidates loads each symbol's model. Symbols without a usable model
// are rejected rather than failing startup.
func loadCandidates(cfg *config.Config, feed market.Feed, logger zerolog.Logger) ([]portfolio.Candidate, []portfolio.Rejection) {
	var ctxModel model.Model
	if cfg.Strategy.UseEnsemble && cfg.Strategy.ContextSymbol != "" {
		m, err := model.LoadMLP(cfg.Strategy.ModelsDir, cfg.Strategy.ContextSymbol)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", cfg.Strategy.ContextSymbol).Msg("Context model unavailable, ensemble disabled")
		} else {
			ctxModel = m
		}
	}

	var candidates []portfolio.Candidate
	var rejected []portfolio.Rejection
	for _, sym := range cfg.Trading.Symbols {
		m, err := model.LoadMLP(cfg.Strategy.ModelsDir, sym)
		if err != nil {
			rejected = append(rejected, portfolio.Rejection{Symbol: sym, Reason: err.Error()})
			continue
		}
		var scorer model.Model = m
		if ctxModel != nil && sym != cfg.Strategy.ContextSymbol {
			scorer = model.NewEnsemble(m, ctxModel, contextRows(feed, cfg, logger))
		}
		candidates = append(candidates, portfolio.Candidate{Symbol: sym, Model: scorer, Quality: m.Quality()})
	}
	return candidates, rejected
}

// contextRows fetches the context symbol's latest features. Failures fall
// back to the symbol model alone.
func contextRows(feed market.Feed, cfg *config.Config, logger zerolog.Logger) func() []indicators.Features {
	sym := cfg.Strategy.ContextSymbol
	return func() []indicators.Features {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		candles, err := feed.Fetch(ctx, sym, cfg.Trading.Timeframe, cfg.Data.Lookback)
		if err != nil {
			logger.Debug().Err(err).Str("symbol", sym).Msg("Context candles unavailable")
			return nil
		}
		rows, err := indicators.Compute(candles)
		if err != nil {
			return nil
		}
		return rows
	}
}

func newRunner(cfg *config.Config, deps engineDeps, c portfolio.Candidate, logger zerolog.Logger) (*runner.Runner, error) {
	rules := broker.ExitRules{
		StopLossPct:    cfg.Risk.StopLossPct,
		TrailingPct:    cfg.Risk.TrailingPct,
		TakeProfitRR:   cfg.Risk.TakeProfitRR,
		BreakevenRR:    cfg.Risk.BreakevenRR,
		MaxHoldCandles: cfg.Risk.MaxHoldCandles,
	}
	opts := broker.Options{
		Symbol:     c.Symbol,
		Rules:      rules,
		AllowShort: cfg.Trading.AllowShort,
		Logger:     logger,
	}
	if deps.exchange != nil {
		opts.Orders = deps.exchange
		opts.Prices = deps.exchange
	}
	b, err := broker.New(cfg.Trading.Mode, opts)
	if err != nil {
		return nil, fmt.Errorf("broker for %s: %w", c.Symbol, err)
	}

	strat := strategy.NewEngine(strategy.Config{
		ProbLong:            cfg.Strategy.ProbLong,
		ProbShort:           cfg.Strategy.ProbShort,
		MinADX:              cfg.Strategy.MinADX,
		MinATRPct:           cfg.Strategy.MinATRPct,
		StopLossPct:         cfg.Risk.StopLossPct,
		WeakExitProb:        cfg.Risk.WeakExitProb,
		UseDynamicThreshold: cfg.Strategy.UseDynamicThreshold,
		UseRegimeFilter:     cfg.Strategy.UseRegimeFilter,
		AllowShort:          cfg.Trading.AllowShort,
	}, c.Model)

	rcfg := runner.Config{
		Symbol:       c.Symbol,
		Timeframe:    cfg.Trading.Timeframe,
		Lookback:     cfg.Data.Lookback,
		Cooldown:     cfg.Cooldown(),
		MaxStaleBars: maxStaleBars,
		Limits: risk.Limits{
			MaxDailyLossPct:      cfg.Risk.MaxDailyLossPct,
			MaxWeeklyLossPct:     cfg.Risk.MaxWeeklyLossPct,
			MaxTradesPerDay:      cfg.Risk.MaxTradesPerDay,
			MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		},
	}
	state := risk.NewState(cfg.Trading.StartingBalance, deps.clock())
	return runner.New(rcfg, deps.feed, strat, b, state, logger, runner.WithClock(deps.clock)), nil
}

// dailyReport persists and announces the summaries of the UTC day holding
// day. It is a no-op when no trade store is configured.
func (e *engine) dailyReport(ctx context.Context, cfg *config.Config, day time.Time) error {
	if e.store == nil {
		return nil
	}
	start := day.UTC().Truncate(24 * time.Hour)
	trades, err := e.store.Trades(ctx, store.TradeFilter{StartDate: start, EndDate: start.Add(24*time.Hour - time.Nanosecond)})
	if err != nil {
		return err
	}
	summaries := performance.DailySummaries(trades)
	if len(summaries) == 0 {
		return nil
	}
	if err := e.store.SaveDailySummaries(ctx, summaries); err != nil {
		return err
	}
	if cfg.Storage.DailyReport != "" {
		all, err := e.store.DailySummaries(ctx, store.DateRange{})
		if err != nil {
			return err
		}
		if err := journal.WriteDailyReport(cfg.Storage.DailyReport, all); err != nil {
			return err
		}
	}
	return e.notifier.SendDailySummary(ctx, summaries)
}

// Close releases the trade sinks.
func (e *engine) Close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Closing trade log")
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Closing trade store")
		}
	}
}
