package exchange

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// maxKlineLimit is the largest page the kline endpoint serves.
const maxKlineLimit = 1000

var intervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
}

// Interval maps a timeframe such as "15m" to the Bybit interval code.
func Interval(timeframe string) (string, error) {
	iv, ok := intervals[timeframe]
	if !ok {
		return "", errors.Permanent(fmt.Errorf("unsupported timeframe %q", timeframe))
	}
	return iv, nil
}

// Klines fetches the most recent closed and open candles for symbol,
// oldest first.
func (c *Client) Klines(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	interval, err := Interval(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	params := map[string]interface{}{
		"category": Category,
		"symbol":   models.ExchangeSymbol(symbol),
		"interval": interval,
		"limit":    limit,
	}
	resp, err := c.call(ctx, "GET", "/v5/market/kline", func(ctx context.Context) (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "klines %s", symbol)
	}
	return parseKlines(resp)
}

// parseKlines decodes [start, open, high, low, close, volume, turnover]
// rows, which Bybit returns newest first.
func parseKlines(resp *bybit_api.ServerResponse) ([]models.Candle, error) {
	var result struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(result.List))
	for _, item := range result.List {
		if len(item) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(item[0], 10, 64)
		if err != nil {
			return nil, errors.Permanent(fmt.Errorf("bad kline start %q: %w", item[0], err))
		}
		var vals [5]float64
		for i := range vals {
			if vals[i], err = parseFloat(item[i+1]); err != nil {
				return nil, errors.Permanent(fmt.Errorf("bad kline field %q: %w", item[i+1], err))
			}
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// LastPrice returns the last traded price for symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": Category,
		"symbol":   models.ExchangeSymbol(symbol),
	}
	resp, err := c.call(ctx, "GET", "/v5/market/tickers", func(ctx context.Context) (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "ticker %s", symbol)
	}
	return parseLastPrice(resp)
}

func parseLastPrice(resp *bybit_api.ServerResponse) (float64, error) {
	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, errors.ErrSymbolNotFound
	}
	price, err := parseFloat(result.List[0].LastPrice)
	if err != nil || price <= 0 {
		return 0, errors.Permanent(fmt.Errorf("bad last price %q", result.List[0].LastPrice))
	}
	return price, nil
}
