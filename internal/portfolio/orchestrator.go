// Package portfolio coordinates the symbol runners under one capital budget.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/errors"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/internal/risk"
	"autotrader/internal/runner"
)

// Config holds the portfolio-level settings.
type Config struct {
	StartingBalance        float64
	MinBalance             float64
	GlobalMaxDrawdownPct   float64
	RiskPerTrade           float64
	MaxPositionNotionalPct float64
	MaxActivePositions     int
	AllocationPct          float64
	MaxConsecutiveErrors   int
	TopK                   int
	RefreshInterval        time.Duration
}

// TradeSink persists completed trades.
type TradeSink interface {
	RecordTrade(ctx context.Context, trade models.Trade) error
}

// Recorder receives engine telemetry.
type Recorder interface {
	ObserveCycle(symbol string, status runner.Status)
	ObserveTrade(trade models.Trade)
	ObserveEntry(symbol string, notional float64)
	SetEquity(equity float64)
	SetOpenPositions(n int)
	SymbolDisabled(symbol string)
}

// Notifier delivers operator notifications.
type Notifier interface {
	SendTrade(ctx context.Context, trade *models.Trade) error
	SendError(ctx context.Context, err error, context string) error
}

// Ranker orders symbols by how tradeable they currently look.
type Ranker interface {
	Rank(ctx context.Context, symbols []string) ([]string, error)
}

type slot struct {
	runner   *runner.Runner
	errors   int
	disabled bool
	reason   string
}

// Orchestrator runs one evaluate/commit cycle across all symbols. It is the
// single owner of the active-position count, the exposure ledger and
// realized equity; runners only propose.
type Orchestrator struct {
	cfg        Config
	guard      *risk.MarketGuard
	supervisor *risk.Supervisor
	exposure   *risk.ExposureGuard

	mu          sync.Mutex
	slots       map[string]*slot
	symbols     []string
	active      map[string]bool
	lastRefresh time.Time
	realized    float64
	peak        float64

	ranker   Ranker
	sinks    []TradeSink
	recorder Recorder
	notifier Notifier
	clock    func() time.Time
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithTradeSinks adds trade persistence targets.
func WithTradeSinks(sinks ...TradeSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithNotifier sets the operator notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithRanker enables periodic top-K universe selection.
func WithRanker(r Ranker) Option {
	return func(o *Orchestrator) { o.ranker = r }
}

// New creates an orchestrator over runners. max_active × allocation is
// clamped to 100% of equity.
func New(cfg Config, runners []*runner.Runner, guard *risk.MarketGuard, supervisor *risk.Supervisor, logger zerolog.Logger, opts ...Option) *Orchestrator {
	if cfg.MaxActivePositions < 1 {
		cfg.MaxActivePositions = 1
	}
	if cfg.AllocationPct <= 0 || float64(cfg.MaxActivePositions)*cfg.AllocationPct > 1 {
		cfg.AllocationPct = 1 / float64(cfg.MaxActivePositions)
	}

	o := &Orchestrator{
		cfg:        cfg,
		guard:      guard,
		supervisor: supervisor,
		exposure:   risk.NewExposureGuard(float64(cfg.MaxActivePositions) * cfg.AllocationPct),
		slots:      make(map[string]*slot, len(runners)),
		active:     make(map[string]bool, len(runners)),
		peak:       cfg.StartingBalance,
		clock:      time.Now,
		logger:     logging.WithComponent(logger, "portfolio"),
	}
	for _, r := range runners {
		o.slots[r.Symbol()] = &slot{runner: r}
		o.symbols = append(o.symbols, r.Symbol())
		o.active[r.Symbol()] = true
	}
	sort.Strings(o.symbols)
	for _, opt := range opts {
		opt(o)
	}
	if o.supervisor != nil {
		o.supervisor.UpdateEquity(cfg.StartingBalance)
	}
	return o
}

// Equity is the starting balance plus all realized pnl.
func (o *Orchestrator) Equity() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.StartingBalance + o.realized
}

// Report summarises one cycle.
type Report struct {
	Time     time.Time
	Results  []runner.CycleResult
	Trades   []models.Trade
	Opened   []string
	Skipped  map[string]string
	Disabled []string
	Equity   float64
	Open     int
}

// Cycle evaluates every enabled symbol in parallel, then commits exits,
// error accounting and admitted entries serially. It returns an error
// wrapping ErrKillSwitch when the process must stop.
func (o *Orchestrator) Cycle(ctx context.Context) (*Report, error) {
	now := o.clock()
	report := &Report{Time: now, Skipped: make(map[string]string)}

	if err := o.checkKillSwitch(); err != nil {
		return report, o.kill(ctx, err, report)
	}
	o.refreshUniverse(ctx, now)

	gate, sizing := o.entryGate(now)
	results := o.evaluate(ctx, gate)
	report.Results = results

	var intents []runner.EntryIntent
	for _, res := range results {
		if res.Trade != nil {
			o.recordTrade(ctx, *res.Trade)
			report.Trades = append(report.Trades, *res.Trade)
		}
		if o.recordStatus(ctx, res) {
			report.Disabled = append(report.Disabled, res.Symbol)
			if trade := o.flattenDisabled(ctx, res.Symbol); trade != nil {
				report.Trades = append(report.Trades, *trade)
			}
		}
		if res.Status == runner.StatusFatal {
			return report, o.kill(ctx, res.Err, report)
		}
		if res.Intent != nil {
			intents = append(intents, *res.Intent)
		}
	}

	if err := o.checkKillSwitch(); err != nil {
		return report, o.kill(ctx, err, report)
	}

	o.commitEntries(ctx, intents, sizing, report)

	report.Open = o.openPositions()
	report.Equity = o.Equity()
	if o.recorder != nil {
		o.recorder.SetOpenPositions(report.Open)
		o.recorder.SetEquity(report.Equity)
	}
	return report, nil
}

// entryGate consults the portfolio governors once per cycle and returns the
// supervisor's risk multiplier.
func (o *Orchestrator) entryGate(now time.Time) (runner.Gate, float64) {
	if o.guard != nil && !o.guard.AllowTrading(o.Equity(), now) {
		return runner.Gate{Blocked: true, Source: "market_guard", Reason: o.guard.Reason()}, 0
	}
	if o.supervisor == nil {
		return runner.Gate{}, 1
	}
	d := o.supervisor.Decide()
	if !d.TradeAllowed {
		return runner.Gate{Blocked: true, Source: "supervisor", Reason: d.Reason}, 0
	}
	return runner.Gate{}, d.RiskMultiplier
}

// evaluate fans out to one goroutine per eligible runner and collects every
// result before returning.
func (o *Orchestrator) evaluate(ctx context.Context, gate runner.Gate) []runner.CycleResult {
	type job struct {
		r    *runner.Runner
		gate runner.Gate
	}

	o.mu.Lock()
	var jobs []job
	for _, sym := range o.symbols {
		s := o.slots[sym]
		g := gate
		if s.disabled {
			// A position that could not be flattened on disable still gets
			// its stops managed.
			if s.runner.Position() == nil {
				continue
			}
			g = runner.Gate{Blocked: true, Source: "portfolio", Reason: "symbol disabled"}
		} else if !o.active[sym] {
			if s.runner.Position() == nil {
				continue
			}
			g = runner.Gate{Blocked: true, Source: "universe", Reason: "not in top-k"}
		}
		jobs = append(jobs, job{r: s.runner, gate: g})
	}
	o.mu.Unlock()

	ch := make(chan runner.CycleResult, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			ch <- j.r.Evaluate(ctx, j.gate)
		}(j)
	}
	wg.Wait()
	close(ch)

	results := make([]runner.CycleResult, 0, len(jobs))
	for res := range ch {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results
}

// recordStatus updates the symbol's error streak and reports whether the
// symbol was disabled by this result.
func (o *Orchestrator) recordStatus(ctx context.Context, res runner.CycleResult) bool {
	if o.recorder != nil {
		o.recorder.ObserveCycle(res.Symbol, res.Status)
	}

	o.mu.Lock()
	s := o.slots[res.Symbol]
	switch res.Status {
	case runner.StatusRetryable:
		if errors.Is(res.Err, context.Canceled) {
			o.mu.Unlock()
			return false
		}
		s.errors++
	case runner.StatusPermanent:
		s.errors = o.cfg.MaxConsecutiveErrors
	case runner.StatusFatal:
	default:
		s.errors = 0
	}
	disable := !s.disabled && o.cfg.MaxConsecutiveErrors > 0 && s.errors >= o.cfg.MaxConsecutiveErrors
	if disable {
		s.disabled = true
		s.reason = res.Reason
	}
	errCount := s.errors
	o.mu.Unlock()

	if !disable {
		return false
	}
	o.logger.Error().
		Str("symbol", res.Symbol).
		Int("errors", errCount).
		Str("last_error", res.Reason).
		Msg("Symbol disabled")
	if o.recorder != nil {
		o.recorder.SymbolDisabled(res.Symbol)
	}
	if o.notifier != nil {
		_ = o.notifier.SendError(ctx, errors.Wrap(errors.ErrSymbolDisabled, res.Reason), res.Symbol)
	}
	return true
}

// flattenDisabled closes the position of a symbol that was just disabled so
// it neither runs unmanaged nor holds a slot under the position cap.
func (o *Orchestrator) flattenDisabled(ctx context.Context, symbol string) *models.Trade {
	o.mu.Lock()
	r := o.slots[symbol].runner
	o.mu.Unlock()

	trade, err := r.Flatten(ctx, models.ExitDisabled)
	if err != nil {
		o.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to flatten disabled symbol, keeping exits managed")
		return nil
	}
	if trade == nil {
		return nil
	}
	o.recordTrade(ctx, *trade)
	return trade
}

// recordTrade feeds a completed trade into every governor and sink.
func (o *Orchestrator) recordTrade(ctx context.Context, trade models.Trade) {
	o.mu.Lock()
	o.realized += trade.PnL
	equity := o.cfg.StartingBalance + o.realized
	o.peak = math.Max(o.peak, equity)
	o.mu.Unlock()

	o.exposure.Unregister(trade.Symbol)
	if o.guard != nil {
		o.guard.RegisterTrade(trade.PnL)
	}
	if o.supervisor != nil {
		o.supervisor.RegisterTrade(trade.PnL)
		o.supervisor.UpdateEquity(equity)
	}
	if o.recorder != nil {
		o.recorder.ObserveTrade(trade)
	}
	for _, sink := range o.sinks {
		if err := sink.RecordTrade(context.WithoutCancel(ctx), trade); err != nil {
			o.logger.Error().Err(err).Str("symbol", trade.Symbol).Msg("Failed to persist trade")
		}
	}
	if o.notifier != nil {
		_ = o.notifier.SendTrade(ctx, &trade)
	}
}

// commitEntries admits intents by descending probability (ties by symbol)
// until the position cap or the exposure budget is exhausted.
func (o *Orchestrator) commitEntries(ctx context.Context, intents []runner.EntryIntent, supervisorMult float64, report *Report) {
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].Probability != intents[j].Probability {
			return intents[i].Probability > intents[j].Probability
		}
		return intents[i].Symbol < intents[j].Symbol
	})

	open := o.openPositions()
	equity := o.Equity()
	notionalCap := math.Min(o.cfg.MaxPositionNotionalPct, o.cfg.AllocationPct)

	for _, in := range intents {
		skip := func(reason string) {
			report.Skipped[in.Symbol] = reason
			logging.LogBlocked(o.logger, in.Symbol, "portfolio", reason)
		}

		if open >= o.cfg.MaxActivePositions {
			skip(fmt.Sprintf("max active positions (%d) reached", o.cfg.MaxActivePositions))
			continue
		}
		riskPct := o.cfg.RiskPerTrade * supervisorMult * in.RiskMultiplier
		qty := risk.Size(equity, riskPct, in.Price, in.Stop, notionalCap)
		if qty <= 0 {
			skip("sized to zero")
			continue
		}
		notional := qty * in.Price
		if !o.exposure.CanAdd(equity, notional) {
			skip("exposure budget exhausted")
			continue
		}

		o.mu.Lock()
		s := o.slots[in.Symbol]
		o.mu.Unlock()
		if _, err := s.runner.Enter(ctx, in, qty); err != nil {
			o.logger.Error().Err(err).Str("symbol", in.Symbol).Msg("Entry failed")
			o.recordStatus(ctx, runner.CycleResult{Symbol: in.Symbol, Status: runner.Classify(err), Reason: err.Error(), Err: err})
			continue
		}
		o.exposure.Register(in.Symbol, notional)
		if o.recorder != nil {
			o.recorder.ObserveEntry(in.Symbol, notional)
		}
		report.Opened = append(report.Opened, in.Symbol)
		open++
	}
}

func (o *Orchestrator) openPositions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.slots {
		if s.runner.Position() != nil {
			n++
		}
	}
	return n
}

// checkKillSwitch trips on equity below the floor or a drawdown from the
// equity peak beyond the global limit.
func (o *Orchestrator) checkKillSwitch() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	equity := o.cfg.StartingBalance + o.realized
	if equity < o.cfg.MinBalance {
		return errors.NewRiskError("min_balance", equity, o.cfg.MinBalance, "equity below minimum balance")
	}
	if o.cfg.GlobalMaxDrawdownPct > 0 && o.peak > 0 {
		dd := (o.peak - equity) / o.peak
		if dd >= o.cfg.GlobalMaxDrawdownPct {
			return errors.NewRiskError("global_drawdown", dd, o.cfg.GlobalMaxDrawdownPct, "global drawdown limit breached")
		}
	}
	return nil
}

// kill flattens every open position and returns err for the caller to stop on.
func (o *Orchestrator) kill(ctx context.Context, err error, report *Report) error {
	o.logger.Error().Err(err).Msg("Kill switch engaged, flattening positions")
	report.Trades = append(report.Trades, o.Shutdown(ctx)...)
	if o.notifier != nil {
		_ = o.notifier.SendError(ctx, err, "kill switch")
	}
	report.Equity = o.Equity()
	return err
}

// Shutdown closes every open position at its last seen price.
func (o *Orchestrator) Shutdown(ctx context.Context) []models.Trade {
	o.mu.Lock()
	runners := make([]*runner.Runner, 0, len(o.slots))
	for _, sym := range o.symbols {
		runners = append(runners, o.slots[sym].runner)
	}
	o.mu.Unlock()

	var trades []models.Trade
	for _, r := range runners {
		trade, err := r.Flatten(ctx, models.ExitShutdown)
		if err != nil {
			o.logger.Error().Err(err).Str("symbol", r.Symbol()).Msg("Failed to flatten position")
			continue
		}
		if trade != nil {
			o.recordTrade(ctx, *trade)
			trades = append(trades, *trade)
		}
	}
	return trades
}

// refreshUniverse re-ranks symbols every RefreshInterval and keeps the top K.
// Ranking failures keep the previous selection.
func (o *Orchestrator) refreshUniverse(ctx context.Context, now time.Time) {
	if o.ranker == nil || o.cfg.TopK <= 0 {
		return
	}
	o.mu.Lock()
	due := o.lastRefresh.IsZero() || now.Sub(o.lastRefresh) >= o.cfg.RefreshInterval
	var candidates []string
	for _, sym := range o.symbols {
		if !o.slots[sym].disabled {
			candidates = append(candidates, sym)
		}
	}
	o.mu.Unlock()
	if !due || len(candidates) == 0 {
		return
	}

	ranked, err := o.ranker.Rank(ctx, candidates)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Universe refresh failed, keeping previous selection")
		return
	}
	if len(ranked) > o.cfg.TopK {
		ranked = ranked[:o.cfg.TopK]
	}

	o.mu.Lock()
	o.lastRefresh = now
	o.active = make(map[string]bool, len(ranked))
	for _, sym := range ranked {
		o.active[sym] = true
	}
	o.mu.Unlock()

	o.logger.Info().Strs("active", ranked).Msg("Universe refreshed")
}

// SymbolStatus is a point-in-time view of one symbol.
type SymbolStatus struct {
	Symbol      string
	Active      bool
	Disabled    bool
	Reason      string
	Errors      int
	Balance     float64
	Blocked     bool
	BlockReason string
	Position    string
}

// Status returns the state of every symbol, sorted by symbol.
func (o *Orchestrator) Status() []SymbolStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SymbolStatus, 0, len(o.symbols))
	for _, sym := range o.symbols {
		s := o.slots[sym]
		snap := s.runner.State().Snapshot()
		st := SymbolStatus{
			Symbol:      sym,
			Active:      o.active[sym],
			Disabled:    s.disabled,
			Reason:      s.reason,
			Errors:      s.errors,
			Balance:     snap.CurrentBalance,
			Blocked:     snap.Blocked,
			BlockReason: snap.BlockReason,
		}
		if p := s.runner.Position(); p != nil {
			st.Position = p.String()
		}
		out = append(out, st)
	}
	return out
}

// Enabled returns the symbols that are still being evaluated.
func (o *Orchestrator) Enabled() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, sym := range o.symbols {
		if !o.slots[sym].disabled {
			out = append(out, sym)
		}
	}
	return out
}
