// Package exchange wraps the Bybit v5 REST API for spot market data and
// market orders.
package exchange

import (
	"context"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"

	"autotrader/internal/logging"
)

// Category is the only market the engine trades.
const Category = "spot"

// Client wraps the Bybit API client.
type Client struct {
	httpClient *bybit_api.Client
	testnet    bool
	limiter    *RateLimiter
	breaker    *CircuitBreaker
	logger     zerolog.Logger
}

// Config holds the configuration for the Bybit client.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool

	// RequestsPerSecond caps outgoing requests; 0 uses 10/s.
	RequestsPerSecond float64

	// BreakerThreshold consecutive transient failures open the circuit for
	// BreakerTimeout. Zero values use 5 and 30s.
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// NewClient creates a new Bybit client. Market data endpoints work without
// credentials.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	baseURL := bybit_api.MAINNET
	if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		cfg.APIKey,
		cfg.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: httpClient,
		testnet:    cfg.Testnet,
		limiter:    NewRateLimiter(rps, int(rps)),
		breaker:    NewCircuitBreaker(threshold, timeout),
		logger:     logging.WithComponent(logger, "exchange"),
	}
}

// Environment returns "testnet" or "mainnet".
func (c *Client) Environment() string {
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

// call runs one request, logs it and classifies the outcome.
func (c *Client) call(ctx context.Context, method, endpoint string, fn func(context.Context) (interface{}, error)) (*bybit_api.ServerResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.breaker.Allow(); err != nil {
		logging.LogAPICall(c.logger, method, endpoint, 0, err)
		return nil, err
	}
	start := time.Now()
	raw, err := fn(ctx)
	var resp *bybit_api.ServerResponse
	if err != nil {
		err = classifyTransport(ctx, err)
	} else {
		resp, err = checkResponse(raw)
	}
	c.breaker.Record(err)
	logging.LogAPICall(c.logger, method, endpoint, time.Since(start), err)
	return resp, err
}
