package exchange

import (
	"context"
	"fmt"
	"testing"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/errors"
)

func okResponse(result interface{}) *bybit_api.ServerResponse {
	return &bybit_api.ServerResponse{RetCode: 0, RetMsg: "OK", Result: result}
}

func TestInterval(t *testing.T) {
	iv, err := Interval("15m")
	require.NoError(t, err)
	assert.Equal(t, "15", iv)

	iv, err = Interval("1h")
	require.NoError(t, err)
	assert.Equal(t, "60", iv)

	iv, err = Interval("1d")
	require.NoError(t, err)
	assert.Equal(t, "D", iv)

	_, err = Interval("7m")
	assert.ErrorIs(t, err, errors.ErrPermanent)
}

func TestParseKlinesOrdersOldestFirst(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"symbol": "BTCUSDT",
		"list": [][]string{
			{"1700000900000", "101", "102", "100", "101.5", "12", "1200"},
			{"1700000000000", "100", "101", "99", "101", "10", "1000"},
			{"bad"},
		},
	})

	candles, err := parseKlines(resp)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].Timestamp)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 101.5, candles[1].Close)
	assert.Equal(t, 12.0, candles[1].Volume)
}

func TestParseKlinesBadNumber(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": [][]string{{"1700000000000", "x", "1", "1", "1", "1", "1"}},
	})
	_, err := parseKlines(resp)
	assert.ErrorIs(t, err, errors.ErrPermanent)
}

func TestCheckResponse(t *testing.T) {
	_, err := checkResponse(&bybit_api.ServerResponse{RetCode: 10006, RetMsg: "Too many visits"})
	assert.ErrorIs(t, err, errors.ErrRateLimited)
	assert.True(t, errors.IsTransient(err))

	_, err = checkResponse(&bybit_api.ServerResponse{RetCode: 10001, RetMsg: "params error"})
	var be *errors.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "10001", be.Code)
	assert.False(t, errors.IsTransient(err))

	_, err = checkResponse("nope")
	assert.ErrorIs(t, err, errors.ErrPermanent)

	resp, err := checkResponse(okResponse(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.RetCode)
}

func TestClassifyTransport(t *testing.T) {
	err := classifyTransport(context.Background(), fmt.Errorf("connection reset"))
	assert.True(t, errors.IsTransient(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = classifyTransport(ctx, fmt.Errorf("connection reset"))
	assert.False(t, errors.IsTransient(err))

	ctx, cancel = context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	err = classifyTransport(ctx, fmt.Errorf("slow"))
	assert.ErrorIs(t, err, errors.ErrTimeout)
}

func TestParseLastPrice(t *testing.T) {
	price, err := parseLastPrice(okResponse(map[string]interface{}{
		"list": []map[string]string{{"symbol": "ETHUSDT", "lastPrice": "2500.5"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2500.5, price)

	_, err = parseLastPrice(okResponse(map[string]interface{}{"list": []interface{}{}}))
	assert.ErrorIs(t, err, errors.ErrSymbolNotFound)
}

func TestParseWalletBalance(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{
				"coin": []map[string]string{
					{"coin": "BTC", "walletBalance": "0.1"},
					{"coin": "USDT", "walletBalance": "512.25"},
				},
			},
		},
	})
	bal, err := parseWalletBalance(resp, "USDT")
	require.NoError(t, err)
	assert.Equal(t, 512.25, bal)

	bal, err = parseWalletBalance(resp, "SOL")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, 2)
	l.now = func() time.Time { return now }
	l.lastUpdate = now

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "bucket drained")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow(), "one token back after half a second at 2/s")
	assert.False(t, l.Allow())

	now = now.Add(time.Hour)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "refill is capped at burst")
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestCircuitBreakerOpensOnTransientFailures(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.Record(errors.Transient(fmt.Errorf("502")))
	}
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.True(t, errors.IsTransient(ErrCircuitOpen))

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow(), "probe after timeout")
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen, "one probe at a time")

	cb.Record(nil)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, cb.Allow())
		cb.Record(errors.Permanent(fmt.Errorf("symbol invalid")))
	}
	assert.Equal(t, CircuitClosed, cb.State())

	cb.Record(errors.Transient(fmt.Errorf("timeout")))
	cb.Record(nil)
	cb.Record(errors.Transient(fmt.Errorf("timeout")))
	assert.Equal(t, CircuitClosed, cb.State(), "a success resets the streak")
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.Record(errors.Transient(fmt.Errorf("down")))
	now = now.Add(time.Minute)
	require.NoError(t, cb.Allow())
	cb.Record(errors.Transient(fmt.Errorf("still down")))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestClientCallFailsFastWhenOpen(t *testing.T) {
	c := NewClient(Config{BreakerThreshold: 2, BreakerTimeout: time.Hour, RequestsPerSecond: 1000}, zerolog.Nop())
	calls := 0
	failing := func(context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("connection reset")
	}

	for i := 0; i < 2; i++ {
		_, err := c.call(context.Background(), "GET", "/v5/market/kline", failing)
		require.Error(t, err)
	}
	_, err := c.call(context.Background(), "GET", "/v5/market/kline", failing)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}
