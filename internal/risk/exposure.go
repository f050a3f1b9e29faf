package risk

import "sync"

// ExposureGuard caps the total notional held across all open positions.
type ExposureGuard struct {
	mu             sync.Mutex
	maxExposurePct float64
	open           map[string]float64
}

// NewExposureGuard creates a guard allowing up to maxExposurePct of equity in
// open notional.
func NewExposureGuard(maxExposurePct float64) *ExposureGuard {
	return &ExposureGuard{
		maxExposurePct: maxExposurePct,
		open:           make(map[string]float64),
	}
}

// CanAdd reports whether a new position of notional value fits under the cap.
func (g *ExposureGuard) CanAdd(equity, notional float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	const eps = 1e-9
	return g.total()+notional <= equity*g.maxExposurePct+eps
}

// Register records the notional of an opened position.
func (g *ExposureGuard) Register(symbol string, notional float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open[symbol] = notional
}

// Unregister releases a closed position.
func (g *ExposureGuard) Unregister(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.open, symbol)
}

// Total returns the open notional.
func (g *ExposureGuard) Total() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total()
}

func (g *ExposureGuard) total() float64 {
	var sum float64
	for _, v := range g.open {
		sum += v
	}
	return sum
}
