package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// ErrReplayExhausted is returned once a replay has served its last candle.
var ErrReplayExhausted = fmt.Errorf("replay exhausted: %w", errors.ErrPermanent)

// candleRow is the on-disk replay format. Timestamps may be unix seconds,
// unix milliseconds or a date-time string.
type candleRow struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReplayFeed serves candles from CSV files, advancing one bar per step so
// the engine sees the history as it unfolded.
type ReplayFeed struct {
	mu     sync.RWMutex
	series map[string][]models.Candle
	cursor int
	maxLen int
}

// ReplayPath returns <dir>/<BASE_QUOTE>_<timeframe>.csv.
func ReplayPath(dir, symbol, timeframe string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", models.DirSymbol(symbol), timeframe))
}

// LoadReplay reads one CSV per symbol. The first warmup candles are
// visible on the first step.
func LoadReplay(dir string, symbols []string, timeframe string, warmup int) (*ReplayFeed, error) {
	f := &ReplayFeed{series: make(map[string][]models.Candle, len(symbols))}
	for _, sym := range symbols {
		candles, err := ReadCandles(ReplayPath(dir, sym, timeframe))
		if err != nil {
			return nil, errors.Wrapf(err, "replay %s", sym)
		}
		f.series[sym] = candles
		if len(candles) > f.maxLen {
			f.maxLen = len(candles)
		}
	}
	f.cursor = warmup
	return f, nil
}

// NewReplayFeed builds a replay over in-memory candles.
func NewReplayFeed(series map[string][]models.Candle, warmup int) *ReplayFeed {
	f := &ReplayFeed{series: series, cursor: warmup}
	for _, c := range series {
		if len(c) > f.maxLen {
			f.maxLen = len(c)
		}
	}
	return f
}

// ReadCandles parses a candle CSV and returns it sorted oldest first.
func ReadCandles(path string) ([]models.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []*candleRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, r := range rows {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Fetch implements Feed, returning at most limit candles up to the cursor.
func (f *ReplayFeed) Fetch(ctx context.Context, symbol, _ string, limit int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	candles, ok := f.series[symbol]
	if !ok {
		return nil, errors.Permanent(errors.Wrap(errors.ErrSymbolNotFound, symbol))
	}
	end := f.cursor
	if end > len(candles) {
		return nil, ErrReplayExhausted
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	out := make([]models.Candle, end-start)
	copy(out, candles[start:end])
	return out, nil
}

// Step advances the replay by one bar. It returns false once every series
// has been fully served.
func (f *ReplayFeed) Step() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursor >= f.maxLen {
		return false
	}
	f.cursor++
	return true
}

// Now returns the open time of the newest visible candle across all series.
func (f *ReplayFeed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var now time.Time
	for _, candles := range f.series {
		i := f.cursor - 1
		if i >= len(candles) {
			i = len(candles) - 1
		}
		if i >= 0 && candles[i].Timestamp.After(now) {
			now = candles[i].Timestamp
		}
	}
	return now
}

// Remaining is the number of steps left before the longest series ends.
func (f *ReplayFeed) Remaining() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.maxLen - f.cursor
}
