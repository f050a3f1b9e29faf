// Package journal keeps the human-readable CSV trade log and daily report
// next to the SQLite store.
package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"autotrader/internal/models"
)

// Header is the trade log column order.
var Header = []string{
	"time", "symbol", "side", "entry_price", "exit_price", "qty", "pnl",
	"balance", "prob_up_entry", "reason", "mode", "id", "entry_time",
}

// TradeRow is one trade log line. Times stay strings so rows written by
// older builds still parse.
type TradeRow struct {
	Time        string  `csv:"time"`
	Symbol      string  `csv:"symbol"`
	Side        string  `csv:"side"`
	EntryPrice  float64 `csv:"entry_price"`
	ExitPrice   float64 `csv:"exit_price"`
	Qty         float64 `csv:"qty"`
	PnL         float64 `csv:"pnl"`
	Balance     float64 `csv:"balance"`
	ProbUpEntry float64 `csv:"prob_up_entry"`
	Reason      string  `csv:"reason"`
	Mode        string  `csv:"mode"`
	ID          string  `csv:"id"`
	EntryTime   string  `csv:"entry_time"`
}

// Trade converts the row back into a trade.
func (r TradeRow) Trade() (models.Trade, error) {
	exitTime, err := time.Parse(time.RFC3339, r.Time)
	if err != nil {
		return models.Trade{}, fmt.Errorf("trade %s: bad time %q: %w", r.ID, r.Time, err)
	}
	t := models.Trade{
		ID:           r.ID,
		Timestamp:    exitTime,
		Symbol:       r.Symbol,
		Side:         models.Side(r.Side),
		Mode:         models.Mode(r.Mode),
		Quantity:     r.Qty,
		EntryPrice:   r.EntryPrice,
		ExitPrice:    r.ExitPrice,
		PnL:          r.PnL,
		BalanceAfter: r.Balance,
		ProbAtEntry:  r.ProbUpEntry,
		ExitReason:   models.ExitReason(r.Reason),
	}
	if r.EntryTime != "" {
		if entry, err := time.Parse(time.RFC3339, r.EntryTime); err == nil {
			t.EntryTime = entry
			t.HoldDuration = exitTime.Sub(entry)
		}
	}
	return t, nil
}

// CSVJournal appends trades to a CSV file. An existing file is extended;
// the header is written only when the file is new or empty.
type CSVJournal struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVJournal opens path for appending.
func NewCSVJournal(path string) (*CSVJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &CSVJournal{file: f, w: w}, nil
}

// RecordTrade appends one row and flushes it.
func (j *CSVJournal) RecordTrade(_ context.Context, t models.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var entry string
	if !t.EntryTime.IsZero() {
		entry = t.EntryTime.UTC().Format(time.RFC3339)
	}
	err := j.w.Write([]string{
		t.Timestamp.UTC().Format(time.RFC3339),
		t.Symbol,
		string(t.Side),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.Quantity),
		f(t.PnL),
		f(t.BalanceAfter),
		strconv.FormatFloat(t.ProbAtEntry, 'f', 4, 64),
		string(t.ExitReason),
		string(t.Mode),
		t.ID,
		entry,
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

// Close flushes and closes the file.
func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// ReadTrades loads every trade in the log. A missing file yields no trades.
func ReadTrades(path string) ([]models.Trade, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.Size() == 0 {
		return nil, nil
	}

	var rows []*TradeRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	trades := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.Trade()
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// WriteDailyReport rewrites the daily report CSV with summaries.
func WriteDailyReport(path string, summaries []models.DailySummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	rows := make([]*models.DailySummary, len(summaries))
	for i := range summaries {
		rows[i] = &summaries[i]
	}
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// ReadDailyReport loads a report written by WriteDailyReport.
func ReadDailyReport(path string) ([]models.DailySummary, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var rows []*models.DailySummary
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	out := make([]models.DailySummary, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
