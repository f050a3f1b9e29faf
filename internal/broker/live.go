package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/errors"
	"autotrader/internal/logging"
	"autotrader/internal/models"
	"autotrader/pkg/id"
)

// LiveBroker sends spot market orders. Spot cannot short, so only LONG
// entries are accepted whatever the configuration says.
type LiveBroker struct {
	*book
	orders OrderPlacer
	logger zerolog.Logger
}

// NewLiveBroker creates a live broker. opts.Orders is required.
func NewLiveBroker(opts Options) (*LiveBroker, error) {
	if opts.Orders == nil {
		return nil, errors.NewValidationError("broker.orders", nil, "live mode needs an exchange client")
	}
	opts.AllowShort = false
	return &LiveBroker{
		book:   newBook(models.ModeLive, opts),
		orders: opts.Orders,
		logger: logging.WithComponent(logging.WithSymbol(opts.Logger, opts.Symbol), "live"),
	}, nil
}

// Open buys req.Quantity at market. The position is recorded only after the
// exchange acknowledges the order.
func (l *LiveBroker) Open(ctx context.Context, req OpenRequest) (*Position, error) {
	pos, err := l.prepareOpen(req)
	if err != nil {
		return nil, err
	}

	order, err := l.orders.MarketOrder(ctx, l.symbol, orderSide(pos.Side, true), pos.Quantity, id.At(req.Time))
	if err != nil {
		return nil, errors.Wrap(err, "entry order")
	}
	pos.OrderID = order.OrderID

	l.logger.Info().
		Str("order_id", order.OrderID).
		Float64("qty", pos.Quantity).
		Float64("price", pos.EntryPrice).
		Msg("Live entry filled")
	return l.commitOpen(pos)
}

// Close sells the position at market. On failure the position stays open so
// the next cycle retries the exit.
func (l *LiveBroker) Close(ctx context.Context, price float64, reason models.ExitReason, at time.Time) (*models.Trade, error) {
	pos, err := l.current()
	if err != nil {
		return nil, err
	}
	if err := validExit(price); err != nil {
		return nil, err
	}

	order, err := l.orders.MarketOrder(ctx, l.symbol, orderSide(pos.Side, false), pos.Quantity, id.At(at))
	if err != nil {
		return nil, errors.Wrap(err, "exit order")
	}

	l.logger.Info().
		Str("order_id", order.OrderID).
		Str("reason", string(reason)).
		Float64("qty", pos.Quantity).
		Float64("price", price).
		Msg("Live exit filled")
	return l.commitClose(price, reason, at)
}
