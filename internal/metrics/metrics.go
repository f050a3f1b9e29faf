// Package metrics exports engine activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"autotrader/internal/models"
	"autotrader/internal/runner"
)

const namespace = "autotrader"

// Recorder implements portfolio.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	tradesTotal   *prometheus.CounterVec
	tradePnL      *prometheus.HistogramVec
	realizedPnL   *prometheus.CounterVec
	entries       *prometheus.CounterVec
	entryNotional *prometheus.HistogramVec
	disabled      *prometheus.GaugeVec
	equity        prometheus.Gauge
	openPositions prometheus.Gauge
}

// NewRecorder creates and registers every collector.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycle_results_total",
				Help:      "Symbol evaluations by outcome",
			},
			[]string{"symbol", "status"},
		),
		tradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Completed trades",
			},
			[]string{"symbol", "side", "exit_reason"},
		),
		tradePnL: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trade_pnl",
				Help:      "Distribution of realized pnl per trade",
				Buckets:   []float64{-20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20},
			},
			[]string{"symbol"},
		),
		realizedPnL: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realized_pnl_abs_total",
				Help:      "Absolute realized pnl split by sign",
			},
			[]string{"symbol", "sign"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_total",
				Help:      "Positions opened",
			},
			[]string{"symbol"},
		),
		entryNotional: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "entry_notional",
				Help:      "Distribution of entry notional",
				Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
			},
			[]string{"symbol"},
		),
		disabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "symbol_disabled",
				Help:      "1 when a symbol has been disabled by repeated errors",
			},
			[]string{"symbol"},
		),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity",
			Help:      "Starting balance plus realized pnl",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open positions",
		}),
	}

	r.registry.MustRegister(
		r.cycles, r.tradesTotal, r.tradePnL, r.realizedPnL, r.entries,
		r.entryNotional, r.disabled, r.equity, r.openPositions,
		prometheus.NewGoCollector(),
	)
	return r
}

// ObserveCycle counts one evaluation outcome.
func (r *Recorder) ObserveCycle(symbol string, status runner.Status) {
	r.cycles.WithLabelValues(symbol, string(status)).Inc()
}

// ObserveTrade records a completed trade.
func (r *Recorder) ObserveTrade(t models.Trade) {
	r.tradesTotal.WithLabelValues(t.Symbol, string(t.Side), string(t.ExitReason)).Inc()
	r.tradePnL.WithLabelValues(t.Symbol).Observe(t.PnL)
	if t.PnL >= 0 {
		r.realizedPnL.WithLabelValues(t.Symbol, "profit").Add(t.PnL)
	} else {
		r.realizedPnL.WithLabelValues(t.Symbol, "loss").Add(-t.PnL)
	}
}

// ObserveEntry records an opened position.
func (r *Recorder) ObserveEntry(symbol string, notional float64) {
	r.entries.WithLabelValues(symbol).Inc()
	r.entryNotional.WithLabelValues(symbol).Observe(notional)
}

// SetEquity updates the equity gauge.
func (r *Recorder) SetEquity(v float64) {
	r.equity.Set(v)
}

// SetOpenPositions updates the open position gauge.
func (r *Recorder) SetOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

// SymbolDisabled flags symbol as disabled.
func (r *Recorder) SymbolDisabled(symbol string) {
	r.disabled.WithLabelValues(symbol).Set(1)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
