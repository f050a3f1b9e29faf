package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"autotrader/internal/models"
)

// Property: a recorded trade reads back unchanged.
func TestProperty_TradeRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "XRP/USDT", "ADA/USDT"}
	sideGen := gen.OneConstOf(models.SideLong, models.SideShort)
	modeGen := gen.OneConstOf(models.ModePaper, models.ModeShadow, models.ModeLive)
	priceGen := gen.Float64Range(0.01, 100000.0)
	qtyGen := gen.Float64Range(0.0001, 1000.0)

	seq := 0
	properties.Property("Trade round-trip: record then query produces equivalent data", prop.ForAll(
		func(symbolIdx int, side models.Side, mode models.Mode, entry, exit, qty float64, holdMinutes int) bool {
			ctx := context.Background()
			seq++
			symbol := fmt.Sprintf("%s-%d", symbols[symbolIdx%len(symbols)], seq)

			exitTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
			hold := time.Duration(holdMinutes) * time.Minute
			trade := models.Trade{
				ID:           fmt.Sprintf("T%06d", seq),
				Timestamp:    exitTime,
				EntryTime:    exitTime.Add(-hold),
				Symbol:       symbol,
				Side:         side,
				Mode:         mode,
				Quantity:     qty,
				EntryPrice:   entry,
				ExitPrice:    exit,
				PnL:          (exit - entry) * qty * side.Sign(),
				BalanceAfter: 500,
				ProbAtEntry:  0.6,
				ExitReason:   models.ExitTrailing,
				HoldDuration: hold,
			}

			if err := store.RecordTrade(ctx, trade); err != nil {
				t.Logf("Failed to record trade: %v", err)
				return false
			}

			got, err := store.Trades(ctx, TradeFilter{Symbol: symbol})
			if err != nil || len(got) != 1 {
				t.Logf("Query returned %d trades, err=%v", len(got), err)
				return false
			}
			if !tradesEqual(trade, got[0]) {
				t.Logf("Trade mismatch: original=%+v, retrieved=%+v", trade, got[0])
				return false
			}
			return true
		},
		gen.IntRange(0, len(symbols)-1),
		sideGen,
		modeGen,
		priceGen,
		priceGen,
		qtyGen,
		gen.IntRange(0, 24*60),
	))

	properties.TestingRun(t)
}

func tradesEqual(a, b models.Trade) bool {
	return a.ID == b.ID &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.EntryTime.Equal(b.EntryTime) &&
		a.Symbol == b.Symbol &&
		a.Side == b.Side &&
		a.Mode == b.Mode &&
		floatEqual(a.Quantity, b.Quantity) &&
		floatEqual(a.EntryPrice, b.EntryPrice) &&
		floatEqual(a.ExitPrice, b.ExitPrice) &&
		floatEqual(a.PnL, b.PnL) &&
		floatEqual(a.BalanceAfter, b.BalanceAfter) &&
		a.ExitReason == b.ExitReason &&
		a.HoldDuration == b.HoldDuration
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
}
