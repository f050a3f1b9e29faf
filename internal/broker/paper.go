package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/logging"
	"autotrader/internal/models"
)

// PaperBroker fills every order at the requested price without touching
// the exchange.
type PaperBroker struct {
	*book
	logger zerolog.Logger
}

// NewPaperBroker creates a paper broker for opts.Symbol.
func NewPaperBroker(opts Options) *PaperBroker {
	return &PaperBroker{
		book:   newBook(models.ModePaper, opts),
		logger: logging.WithComponent(logging.WithSymbol(opts.Logger, opts.Symbol), "paper"),
	}
}

// Open simulates an immediate fill at req.Price.
func (p *PaperBroker) Open(ctx context.Context, req OpenRequest) (*Position, error) {
	pos, err := p.prepareOpen(req)
	if err != nil {
		return nil, err
	}
	pos, err = p.commitOpen(pos)
	if err != nil {
		return nil, err
	}
	p.logger.Info().
		Str("side", string(pos.Side)).
		Float64("qty", pos.Quantity).
		Float64("price", pos.EntryPrice).
		Float64("stop", pos.HardStop).
		Msg("Paper position opened")
	return pos, nil
}

// Close simulates an immediate fill at price.
func (p *PaperBroker) Close(ctx context.Context, price float64, reason models.ExitReason, at time.Time) (*models.Trade, error) {
	if err := validExit(price); err != nil {
		return nil, err
	}
	return p.commitClose(price, reason, at)
}
