// Package runner drives one symbol: fetch, manage the open position, and
// propose entries.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/broker"
	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/logging"
	"autotrader/internal/market"
	"autotrader/internal/models"
	"autotrader/internal/risk"
	"autotrader/internal/strategy"
)

// Config holds the per-symbol settings.
type Config struct {
	Symbol       string
	Timeframe    string
	Lookback     int
	Cooldown     time.Duration
	Limits       risk.Limits
	MaxStaleBars int // 0 skips the freshness check
}

// Gate tells the runner whether portfolio governors allow entries this
// cycle. Exits are never gated.
type Gate struct {
	Blocked bool
	Source  string
	Reason  string
}

// Runner is the control loop of one symbol. Evaluate and Enter are called
// by the orchestrator; a runner never talks to other runners.
type Runner struct {
	cfg    Config
	feed   market.Feed
	engine *strategy.Engine
	broker broker.Broker
	state  *risk.State
	clock  func() time.Time
	logger zerolog.Logger

	mu            sync.Mutex
	lastTradeTime time.Time
	lastPrice     float64
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) { r.clock = clock }
}

// New creates a runner. state is the symbol's own risk ledger.
func New(cfg Config, feed market.Feed, engine *strategy.Engine, b broker.Broker, state *risk.State, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		feed:   feed,
		engine: engine,
		broker: b,
		state:  state,
		clock:  time.Now,
		logger: logging.WithSymbol(logging.WithComponent(logger, "runner"), cfg.Symbol),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Symbol returns the runner's symbol.
func (r *Runner) Symbol() string { return r.cfg.Symbol }

// State returns the runner's risk ledger.
func (r *Runner) State() *risk.State { return r.state }

// Position returns a copy of the open position, or nil.
func (r *Runner) Position() *broker.Position { return r.broker.Position() }

// Evaluate runs one cycle: exits first, then an entry proposal when flat.
// A panic inside the cycle is contained and reported as a permanent failure.
func (r *Runner) Evaluate(ctx context.Context, gate Gate) (res CycleResult) {
	defer func() {
		if p := recover(); p != nil {
			err := errors.Permanent(fmt.Errorf("panic: %v", p))
			r.logger.Error().Err(err).Msg("Cycle panicked")
			res = errorResult(r.cfg.Symbol, err)
		}
	}()

	now := r.clock()
	if r.state.ResetIfNewDay(now) {
		r.logger.Info().Str("date", now.Format("2006-01-02")).Msg("Daily risk counters reset")
	}

	rows, err := r.features(ctx, now)
	if err != nil {
		if Classify(err) != StatusNoSignal {
			r.logger.Warn().Err(err).Msg("Cycle failed")
		}
		return errorResult(r.cfg.Symbol, err)
	}
	last, _ := indicators.Last(rows)
	price := last.Close

	r.mu.Lock()
	r.lastPrice = price
	r.mu.Unlock()

	if pos := r.broker.Position(); pos != nil {
		return r.manage(ctx, pos, rows, price, now)
	}
	return r.propose(rows, price, now, gate)
}

func (r *Runner) features(ctx context.Context, now time.Time) ([]indicators.Features, error) {
	candles, err := r.feed.Fetch(ctx, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.Lookback)
	if err != nil {
		return nil, err
	}
	if r.cfg.MaxStaleBars > 0 {
		if err := market.CheckFresh(candles, r.cfg.Timeframe, now, r.cfg.MaxStaleBars); err != nil {
			return nil, err
		}
	}
	return indicators.Compute(candles)
}

// manage advances the open position and closes it when an exit triggers.
func (r *Runner) manage(ctx context.Context, pos *broker.Position, rows []indicators.Features, price float64, now time.Time) CycleResult {
	res := CycleResult{Symbol: r.cfg.Symbol, Status: StatusOK, Price: price, Reason: "holding"}

	last, _ := indicators.Last(rows)
	reason, exit := r.broker.Manage(price, last.Timestamp)
	if !exit {
		p, err := r.engine.Probability(rows)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Model unavailable while holding, stops still active")
		} else {
			res.Prob = p
			if r.engine.WeakExit(pos.Side, p) {
				reason, exit = models.ExitWeakSignal, true
			}
		}
	}
	if !exit {
		return res
	}

	trade, err := r.close(ctx, price, reason, now)
	if err != nil {
		return errorResult(r.cfg.Symbol, err)
	}
	res.Trade = trade
	res.Reason = string(reason)
	return res
}

// propose turns a strategy decision into an entry intent.
func (r *Runner) propose(rows []indicators.Features, price float64, now time.Time, gate Gate) CycleResult {
	blocked := func(source, reason string) CycleResult {
		logging.LogBlocked(r.logger, r.cfg.Symbol, source, reason)
		return CycleResult{Symbol: r.cfg.Symbol, Status: StatusBlocked, Reason: source + ": " + reason, Price: price}
	}

	if gate.Blocked {
		return blocked(gate.Source, gate.Reason)
	}
	if left := r.cooldownLeft(now); left > 0 {
		return CycleResult{Symbol: r.cfg.Symbol, Status: StatusBlocked, Reason: fmt.Sprintf("cooldown: %s left", left.Round(time.Second)), Price: price}
	}
	if !r.state.TradingAllowed(r.cfg.Limits) {
		_, reason := r.state.Blocked()
		return blocked("symbol_risk", reason)
	}

	d, err := r.engine.Evaluate(rows)
	if err != nil {
		return errorResult(r.cfg.Symbol, err)
	}
	res := CycleResult{Symbol: r.cfg.Symbol, Status: StatusNoSignal, Reason: d.Reason, Price: price, Prob: d.Prob}
	side, ok := d.Side()
	if !ok {
		return res
	}

	res.Status = StatusOK
	res.Reason = "signal"
	res.Intent = &EntryIntent{
		Symbol:         r.cfg.Symbol,
		Side:           side,
		Price:          d.Entry,
		Stop:           d.Stop,
		Probability:    d.Prob,
		Threshold:      d.Threshold,
		RiskMultiplier: d.RiskMultiplier(),
		Regime:         d.Regime,
		Time:           now,
	}
	if last, ok := indicators.Last(rows); ok {
		res.Intent.Bar = last.Timestamp
	}
	return res
}

// Enter opens the admitted intent with qty units. The order runs detached
// from ctx so a shutdown cannot leave a half-recorded position.
func (r *Runner) Enter(ctx context.Context, intent EntryIntent, qty float64) (*broker.Position, error) {
	pos, err := r.broker.Open(context.WithoutCancel(ctx), broker.OpenRequest{
		Side:        intent.Side,
		Price:       intent.Price,
		Quantity:    qty,
		Time:        intent.Time,
		Bar:         intent.Bar,
		Probability: intent.Probability,
	})
	if err != nil {
		return nil, err
	}
	logging.LogEntry(r.logger, r.cfg.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice, pos.ProbAtEntry)
	return pos, nil
}

// Flatten closes any open position at the last seen price.
func (r *Runner) Flatten(ctx context.Context, reason models.ExitReason) (*models.Trade, error) {
	if r.broker.Position() == nil {
		return nil, nil
	}
	r.mu.Lock()
	price := r.lastPrice
	r.mu.Unlock()
	if price <= 0 {
		price = r.broker.Position().EntryPrice
	}
	return r.close(ctx, price, reason, r.clock())
}

// close exits the position and books the pnl into the symbol ledger.
func (r *Runner) close(ctx context.Context, price float64, reason models.ExitReason, now time.Time) (*models.Trade, error) {
	trade, err := r.broker.Close(context.WithoutCancel(ctx), price, reason, now)
	if err != nil {
		r.logger.Error().Err(err).Str("reason", string(reason)).Msg("Exit failed, position still open")
		return nil, err
	}

	r.state.RegisterTrade(trade.PnL)
	trade.BalanceAfter = r.state.CurrentBalance()

	r.mu.Lock()
	r.lastTradeTime = now
	r.mu.Unlock()

	logging.LogTrade(r.logger, trade.Symbol, string(trade.Side), string(trade.ExitReason),
		trade.Quantity, trade.EntryPrice, trade.ExitPrice, trade.PnL)
	return trade, nil
}

func (r *Runner) cooldownLeft(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Cooldown <= 0 || r.lastTradeTime.IsZero() {
		return 0
	}
	return r.cfg.Cooldown - now.Sub(r.lastTradeTime)
}
