// Package store provides trade and daily-report persistence.
package store

import (
	"context"
	"time"

	"autotrader/internal/models"
)

// TradeStore persists completed trades and daily summaries. Trades are
// append-only; summaries are keyed by (date, symbol) and replaced on rewrite.
type TradeStore interface {
	RecordTrade(ctx context.Context, trade models.Trade) error
	Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	SaveDailySummaries(ctx context.Context, summaries []models.DailySummary) error
	DailySummaries(ctx context.Context, dateRange DateRange) ([]models.DailySummary, error)

	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	Side      models.Side
	Mode      models.Mode
	Limit     int
}

// DateRange is an inclusive range of YYYY-MM-DD days. Empty bounds are open.
type DateRange struct {
	Start string
	End   string
}
