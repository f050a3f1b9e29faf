// Package broker owns per-symbol positions and executes entries and exits
// in paper, shadow or live mode.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/errors"
	"autotrader/internal/exchange"
	"autotrader/internal/models"
	"autotrader/pkg/id"
)

// Broker executes and tracks the single position of one symbol.
type Broker interface {
	// Open enters a position. It fails with ErrPositionOpen while one is held.
	Open(ctx context.Context, req OpenRequest) (*Position, error)
	// Close exits the open position at price and returns the completed trade.
	Close(ctx context.Context, price float64, reason models.ExitReason, at time.Time) (*models.Trade, error)
	// Manage advances the open position to price as of the candle opened at
	// bar and reports any triggered exit. It never closes the position itself.
	Manage(price float64, bar time.Time) (models.ExitReason, bool)
	// Position returns a copy of the open position, or nil.
	Position() *Position
	Mode() models.Mode
}

// OpenRequest is an entry order.
type OpenRequest struct {
	Side        models.Side
	Price       float64
	Quantity    float64
	Time        time.Time
	Bar         time.Time // open time of the candle the entry was decided on
	Probability float64
}

// OrderPlacer sends market orders to the exchange.
type OrderPlacer interface {
	MarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, qty float64, linkID string) (*exchange.Order, error)
}

// PriceSource quotes the last traded price.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Options configures a broker.
type Options struct {
	Symbol     string
	Rules      ExitRules
	AllowShort bool
	Orders     OrderPlacer // required in live mode
	Prices     PriceSource // optional shadow-mode fill source
	Logger     zerolog.Logger
}

// New returns the broker variant for mode.
func New(mode models.Mode, opts Options) (Broker, error) {
	switch mode {
	case models.ModePaper:
		return NewPaperBroker(opts), nil
	case models.ModeShadow:
		return NewShadowBroker(opts), nil
	case models.ModeLive:
		return NewLiveBroker(opts)
	}
	return nil, errors.NewValidationError("trading.mode", mode, "unknown broker mode")
}

// book is the position state machine shared by every variant. Mutations
// happen under mu and never span a network call.
type book struct {
	mu         sync.Mutex
	symbol     string
	mode       models.Mode
	rules      ExitRules
	allowShort bool
	pos        *Position
}

func newBook(mode models.Mode, opts Options) *book {
	return &book{
		symbol:     opts.Symbol,
		mode:       mode,
		rules:      opts.Rules,
		allowShort: opts.AllowShort,
	}
}

// Mode returns the execution mode.
func (b *book) Mode() models.Mode {
	return b.mode
}

// Position returns a copy of the open position, or nil.
func (b *book) Position() *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return nil
	}
	cp := *b.pos
	return &cp
}

// Manage advances the open position and reports a triggered exit.
func (b *book) Manage(price float64, bar time.Time) (models.ExitReason, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return "", false
	}
	b.pos.Manage(price, bar, b.rules)
	return b.pos.ExitReason(price, b.rules)
}

// prepareOpen validates an entry against the current state.
func (b *book) prepareOpen(req OpenRequest) (*Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos != nil {
		return nil, errors.ErrPositionOpen
	}
	if req.Side == models.SideShort && !b.allowShort {
		return nil, errors.ErrShortNotAllowed
	}
	pos, err := NewPosition(b.symbol, req.Side, req.Price, req.Quantity, req.Time, req.Probability, b.rules)
	if err != nil {
		return nil, err
	}
	pos.LastBar = req.Bar
	return pos, nil
}

// commitOpen stores pos unless another entry won the race.
func (b *book) commitOpen(pos *Position) (*Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos != nil {
		return nil, errors.ErrPositionOpen
	}
	b.pos = pos
	cp := *pos
	return &cp, nil
}

func (b *book) current() (*Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return nil, errors.ErrNoPosition
	}
	cp := *b.pos
	return &cp, nil
}

// commitClose clears the position and builds the trade record.
func (b *book) commitClose(price float64, reason models.ExitReason, at time.Time) (*models.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return nil, errors.ErrNoPosition
	}
	p := b.pos
	b.pos = nil

	return &models.Trade{
		ID:           id.At(at),
		Timestamp:    at,
		EntryTime:    p.EntryTime,
		Symbol:       p.Symbol,
		Side:         p.Side,
		Mode:         b.mode,
		Quantity:     p.Quantity,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    price,
		PnL:          p.PnL(price),
		ProbAtEntry:  p.ProbAtEntry,
		ExitReason:   reason,
		HoldDuration: at.Sub(p.EntryTime),
	}, nil
}

func validExit(price float64) error {
	if !(price > 0) {
		return errors.Wrapf(errors.ErrInvalidOrder, "exit price %v", price)
	}
	return nil
}
