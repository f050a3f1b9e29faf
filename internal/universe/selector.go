// Package universe ranks the configured symbols so the portfolio can trade
// only the most active ones.
package universe

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"autotrader/internal/indicators"
	"autotrader/internal/logging"
	"autotrader/internal/market"
	"autotrader/internal/models"
)

// MinBars is the shortest history a symbol needs to be scored.
const MinBars = 100

const (
	indicatorPeriod = 14
	volumeWindow    = 20
	maxTrendADX     = 40.0
)

// Config parameterises the selector.
type Config struct {
	Timeframe      string
	Lookback       int
	MinATRPct      float64
	MinVolumeRatio float64
	Concurrency    int
}

// DefaultConfig returns a 200-bar lookback requiring above-average volume.
func DefaultConfig(timeframe string) Config {
	return Config{
		Timeframe:      timeframe,
		Lookback:       200,
		MinVolumeRatio: 1.0,
		Concurrency:    4,
	}
}

// Score is the ranking of one symbol.
type Score struct {
	Symbol      string
	Value       float64
	ATRPct      float64
	VolumeRatio float64
	ADX         float64
}

// Selector scores symbols by volatility × relative volume × capped trend
// strength.
type Selector struct {
	cfg    Config
	feed   market.Feed
	logger zerolog.Logger
}

// NewSelector creates a selector over feed.
func NewSelector(cfg Config, feed market.Feed, logger zerolog.Logger) *Selector {
	if cfg.Lookback < MinBars {
		cfg.Lookback = MinBars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Selector{cfg: cfg, feed: feed, logger: logging.WithComponent(logger, "universe")}
}

// Rank returns symbols ordered by score, best first. Symbols that cannot be
// scored are left out; if none can, the input order is returned unchanged.
func (s *Selector) Rank(ctx context.Context, symbols []string) ([]string, error) {
	scores := s.Scores(ctx, symbols)
	if len(scores) == 0 {
		s.logger.Warn().Int("symbols", len(symbols)).Msg("No symbol could be scored, falling back to base list")
		return append([]string(nil), symbols...), ctx.Err()
	}
	ranked := make([]string, len(scores))
	for i, sc := range scores {
		ranked[i] = sc.Symbol
	}
	return ranked, nil
}

// Scores fetches and scores every symbol concurrently, best first.
func (s *Selector) Scores(ctx context.Context, symbols []string) []Score {
	work := make(chan string)
	results := make(chan Score, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range work {
				if sc, ok := s.score(ctx, symbol); ok {
					results <- sc
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, symbol := range symbols {
			select {
			case <-ctx.Done():
				return
			case work <- symbol:
			}
		}
	}()

	wg.Wait()
	close(results)

	out := make([]Score, 0, len(symbols))
	for sc := range results {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (s *Selector) score(ctx context.Context, symbol string) (Score, bool) {
	candles, err := s.feed.Fetch(ctx, symbol, s.cfg.Timeframe, s.cfg.Lookback)
	if err != nil {
		s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Skipping symbol")
		return Score{}, false
	}
	sc, err := ScoreCandles(candles)
	if err != nil {
		s.logger.Debug().Err(err).Str("symbol", symbol).Msg("Skipping symbol")
		return Score{}, false
	}
	if sc.ATRPct < s.cfg.MinATRPct || sc.VolumeRatio < s.cfg.MinVolumeRatio {
		return Score{}, false
	}
	sc.Symbol = symbol
	return sc, true
}

// ScoreCandles computes the ranking inputs from the latest bar.
func ScoreCandles(candles []models.Candle) (Score, error) {
	if len(candles) < MinBars {
		return Score{}, indicators.ErrInsufficientData
	}
	atr, err := indicators.NewATR(indicatorPeriod).Calculate(candles)
	if err != nil {
		return Score{}, err
	}
	adx, err := indicators.NewADX(indicatorPeriod).Calculate(candles)
	if err != nil {
		return Score{}, err
	}

	last := len(candles) - 1
	price := candles[last].Close
	if price <= 0 {
		return Score{}, indicators.ErrInsufficientData
	}

	var volSum float64
	for _, c := range candles[last-volumeWindow+1:] {
		volSum += c.Volume
	}
	volMA := volSum / volumeWindow

	sc := Score{ATRPct: atr[last] / price, ADX: adx.ADX[last]}
	if volMA > 0 {
		sc.VolumeRatio = candles[last].Volume / volMA
	}
	sc.Value = sc.ATRPct * sc.VolumeRatio * math.Min(sc.ADX, maxTrendADX)
	if math.IsNaN(sc.Value) || math.IsInf(sc.Value, 0) {
		return Score{}, indicators.ErrInsufficientData
	}
	return sc, nil
}
