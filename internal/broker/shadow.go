package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/exchange"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/pkg/utils"
)

// ShadowBroker builds the exact orders live mode would send and logs them
// instead. When a price source is configured fills use the exchange's last
// traded price, so shadow PnL reflects the slippage between candle close and
// execution.
type ShadowBroker struct {
	*book
	prices PriceSource
	logger zerolog.Logger
}

// NewShadowBroker creates a shadow broker for opts.Symbol.
func NewShadowBroker(opts Options) *ShadowBroker {
	return &ShadowBroker{
		book:   newBook(models.ModeShadow, opts),
		prices: opts.Prices,
		logger: logging.WithComponent(logging.WithSymbol(opts.Logger, opts.Symbol), "shadow"),
	}
}

// Open logs the entry order and records the position.
func (s *ShadowBroker) Open(ctx context.Context, req OpenRequest) (*Position, error) {
	req.Price = s.fillPrice(ctx, req.Price)
	pos, err := s.prepareOpen(req)
	if err != nil {
		return nil, err
	}
	s.logOrder(orderSide(pos.Side, true), pos.Quantity, pos.EntryPrice)
	return s.commitOpen(pos)
}

// Close logs the exit order and returns the simulated trade.
func (s *ShadowBroker) Close(ctx context.Context, price float64, reason models.ExitReason, at time.Time) (*models.Trade, error) {
	pos, err := s.current()
	if err != nil {
		return nil, err
	}
	price = s.fillPrice(ctx, price)
	if err := validExit(price); err != nil {
		return nil, err
	}
	s.logOrder(orderSide(pos.Side, false), pos.Quantity, price)
	return s.commitClose(price, reason, at)
}

func (s *ShadowBroker) fillPrice(ctx context.Context, fallback float64) float64 {
	if s.prices == nil {
		return fallback
	}
	px, err := s.prices.LastPrice(ctx, s.symbol)
	if err != nil || !(px > 0) {
		s.logger.Debug().Err(err).Msg("Last price unavailable, filling at candle close")
		return fallback
	}
	return px
}

func (s *ShadowBroker) logOrder(side exchange.OrderSide, qty, price float64) {
	s.logger.Info().
		Str("category", exchange.Category).
		Str("venue_symbol", models.ExchangeSymbol(s.symbol)).
		Str("side", string(side)).
		Str("order_type", "Market").
		Str("qty", utils.FormatQuantity(qty)).
		Float64("ref_price", price).
		Msg("Shadow order (not sent)")
}

// orderSide maps a position side to the order that opens or closes it.
func orderSide(side models.Side, opening bool) exchange.OrderSide {
	buy := side == models.SideLong
	if !opening {
		buy = !buy
	}
	if buy {
		return exchange.OrderSideBuy
	}
	return exchange.OrderSideSell
}
