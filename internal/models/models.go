// Package models provides domain models for the trading application.
package models

import (
	"strings"
	"time"
)

// Side represents the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Mode represents the execution mode of the engine.
type Mode string

const (
	ModePaper  Mode = "paper"
	ModeShadow Mode = "shadow"
	ModeLive   Mode = "live"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModePaper, ModeShadow, ModeLive:
		return true
	}
	return false
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `csv:"timestamp"`
	Open      float64   `csv:"open"`
	High      float64   `csv:"high"`
	Low       float64   `csv:"low"`
	Close     float64   `csv:"close"`
	Volume    float64   `csv:"volume"`
}

// ExchangeSymbol converts "BTC/USDT" into the venue form "BTCUSDT".
func ExchangeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// DirSymbol converts "BTC/USDT" into a filesystem-safe "BTC_USDT".
func DirSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

// ModelQuality holds the offline validation metrics of a scoring model.
type ModelQuality struct {
	F1        float64 `json:"val_f1"`
	Precision float64 `json:"val_precision"`
	Recall    float64 `json:"val_recall"`
}
