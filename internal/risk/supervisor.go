package risk

import "sync"

// Decision reasons.
const (
	ReasonNoHistory  = "no-history"
	ReasonDrawdown   = "drawdown"
	ReasonLowWinRate = "low-win-rate"
	ReasonStrong     = "strong-performance"
	ReasonNormal     = "normal"
)

// SupervisorDecision scales risk from recent performance.
type SupervisorDecision struct {
	RiskMultiplier float64
	TradeAllowed   bool
	Reason         string
}

// SupervisorConfig parameterises the supervisor.
type SupervisorConfig struct {
	Window        int
	MaxDrawdown   float64
	MinWinRate    float64
	StrongWinRate float64
}

// DefaultSupervisorConfig returns window 20, 3% drawdown, 40%/60% win-rate bands.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Window:        20,
		MaxDrawdown:   0.03,
		MinWinRate:    0.40,
		StrongWinRate: 0.60,
	}
}

// Supervisor keeps a bounded ring of realised pnls and the equity peak.
type Supervisor struct {
	mu  sync.Mutex
	cfg SupervisorConfig

	pnls  []float64
	next  int
	count int

	equity float64
	peak   float64
}

// NewSupervisor creates a supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Window < 1 {
		cfg.Window = DefaultSupervisorConfig().Window
	}
	return &Supervisor{
		cfg:  cfg,
		pnls: make([]float64, cfg.Window),
	}
}

// UpdateEquity records the latest equity and advances the running peak.
func (s *Supervisor) UpdateEquity(equity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equity = equity
	if equity > s.peak {
		s.peak = equity
	}
}

// RegisterTrade pushes a realised pnl, evicting the oldest when full.
func (s *Supervisor) RegisterTrade(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pnls[s.next] = pnl
	s.next = (s.next + 1) % len(s.pnls)
	if s.count < len(s.pnls) {
		s.count++
	}
}

// Decide derives the current decision.
func (s *Supervisor) Decide() SupervisorDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return SupervisorDecision{RiskMultiplier: 1.0, TradeAllowed: true, Reason: ReasonNoHistory}
	}

	if s.peak > 0 {
		if dd := (s.peak - s.equity) / s.peak; dd >= s.cfg.MaxDrawdown {
			return SupervisorDecision{RiskMultiplier: 0.0, TradeAllowed: false, Reason: ReasonDrawdown}
		}
	}

	wins := 0
	for i := 0; i < s.count; i++ {
		if s.pnls[i] > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(s.count)

	switch {
	case winRate < s.cfg.MinWinRate:
		return SupervisorDecision{RiskMultiplier: 0.5, TradeAllowed: true, Reason: ReasonLowWinRate}
	case winRate > s.cfg.StrongWinRate:
		return SupervisorDecision{RiskMultiplier: 1.25, TradeAllowed: true, Reason: ReasonStrong}
	default:
		return SupervisorDecision{RiskMultiplier: 1.0, TradeAllowed: true, Reason: ReasonNormal}
	}
}

// History returns the retained pnls, oldest first.
func (s *Supervisor) History() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, 0, s.count)
	start := 0
	if s.count == len(s.pnls) {
		start = s.next
	}
	for i := 0; i < s.count; i++ {
		out = append(out, s.pnls[(start+i)%len(s.pnls)])
	}
	return out
}
