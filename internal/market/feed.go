// Package market provides candle feeds for the symbol runners.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/errors"
	"autotrader/internal/exchange"
	"autotrader/internal/models"
	"autotrader/pkg/utils"
)

// Feed returns the latest candles for a symbol, oldest first.
type Feed interface {
	Fetch(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// BybitFeed reads spot klines from Bybit.
type BybitFeed struct {
	client *exchange.Client
}

// NewBybitFeed creates a feed backed by client.
func NewBybitFeed(client *exchange.Client) *BybitFeed {
	return &BybitFeed{client: client}
}

// Fetch implements Feed.
func (f *BybitFeed) Fetch(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	candles, err := f.client.Klines(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.NewDataError("klines", symbol, "empty response", errors.ErrTransient)
	}
	return candles, nil
}

// RetryingFeed retries transient fetch failures with exponential backoff.
type RetryingFeed struct {
	inner  Feed
	cfg    utils.RetryConfig
	logger zerolog.Logger
}

// NewRetryingFeed wraps inner. attempts and delay come from the data config.
func NewRetryingFeed(inner Feed, attempts int, delay time.Duration, logger zerolog.Logger) *RetryingFeed {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = delay
	cfg.ShouldRetry = errors.IsTransient
	return &RetryingFeed{inner: inner, cfg: cfg, logger: logger}
}

// Fetch implements Feed. Exhausted retries return the last error.
func (f *RetryingFeed) Fetch(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	cfg := f.cfg
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Fetch failed, retrying")
	}
	return utils.RetryWithResult(ctx, cfg, func() ([]models.Candle, error) {
		return f.inner.Fetch(ctx, symbol, timeframe, limit)
	})
}

// TimeframeDuration converts "15m", "1h", "1d" and similar into a duration.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	if len(timeframe) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	var n int
	if _, err := fmt.Sscanf(timeframe[:len(timeframe)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	switch timeframe[len(timeframe)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", timeframe)
}

// CheckFresh rejects a window whose newest candle started more than
// maxBars timeframes before now.
func CheckFresh(candles []models.Candle, timeframe string, now time.Time, maxBars int) error {
	if len(candles) == 0 {
		return errors.ErrInsufficientData
	}
	step, err := TimeframeDuration(timeframe)
	if err != nil {
		return errors.Permanent(err)
	}
	age := now.Sub(candles[len(candles)-1].Timestamp)
	if age > time.Duration(maxBars)*step {
		return errors.NewDataError("klines", "", fmt.Sprintf("latest candle is %s old", age.Round(time.Second)), errors.ErrTransient)
	}
	return nil
}
