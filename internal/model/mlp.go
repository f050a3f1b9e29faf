package model

import (
	"fmt"
	"math"
	"path/filepath"

	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/models"
)

// Layer is one dense layer: out = W·in + b.
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// Scaler standardises inputs: (x − mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Weights is the exported network: ReLU hidden layers and a sigmoid output.
type Weights struct {
	Scaler Scaler  `json:"scaler"`
	Layers []Layer `json:"layers"`
}

// MLP is a feed-forward direction model.
type MLP struct {
	meta    Metadata
	columns []string
	weights Weights
}

// DefaultFeatureColumns is used when metadata does not list its inputs.
var DefaultFeatureColumns = []string{"ema_fast", "ema_slow", "rsi", "ret", "vol", "atr_pct", "adx"}

// LoadMLP loads metadata.json and weights.json for symbol.
func LoadMLP(modelsDir, symbol string) (*MLP, error) {
	meta, err := LoadMetadata(modelsDir, symbol)
	if err != nil {
		return nil, err
	}
	var w Weights
	if err := readJSON(filepath.Join(Dir(modelsDir, symbol), "weights.json"), &w); err != nil {
		return nil, errors.Wrapf(err, "model weights for %s", symbol)
	}
	return NewMLP(*meta, w)
}

// NewMLP validates layer shapes against the feature columns.
func NewMLP(meta Metadata, w Weights) (*MLP, error) {
	columns := meta.FeatureColumns
	if len(columns) == 0 {
		columns = DefaultFeatureColumns
	}
	if len(w.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", errors.ErrModelUnavailable)
	}
	if len(w.Scaler.Mean) != len(columns) || len(w.Scaler.Scale) != len(columns) {
		return nil, fmt.Errorf("%w: scaler has %d/%d entries for %d features",
			errors.ErrModelUnavailable, len(w.Scaler.Mean), len(w.Scaler.Scale), len(columns))
	}

	in := len(columns)
	for i, l := range w.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return nil, fmt.Errorf("%w: layer %d has %d rows and %d biases",
				errors.ErrModelUnavailable, i, len(l.Weights), len(l.Bias))
		}
		for _, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("%w: layer %d expects %d inputs, got %d",
					errors.ErrModelUnavailable, i, len(row), in)
			}
		}
		in = len(l.Weights)
	}
	if in != 1 {
		return nil, fmt.Errorf("%w: output layer has %d units", errors.ErrModelUnavailable, in)
	}

	return &MLP{meta: meta, columns: columns, weights: w}, nil
}

// Quality returns the validation metrics from metadata.
func (m *MLP) Quality() models.ModelQuality {
	return m.meta.Quality()
}

// Metadata returns the model metadata.
func (m *MLP) Metadata() Metadata {
	return m.meta
}

// PredictProba scores the latest row.
func (m *MLP) PredictProba(rows []indicators.Features) (float64, error) {
	last, ok := indicators.Last(rows)
	if !ok {
		return 0, errors.ErrInsufficientData
	}

	x := make([]float64, len(m.columns))
	for i, col := range m.columns {
		v, ok := last.Column(col)
		if !ok {
			return 0, errors.Permanent(fmt.Errorf("unknown feature column %q", col))
		}
		scale := m.weights.Scaler.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x[i] = (v - m.weights.Scaler.Mean[i]) / scale
	}

	for li, l := range m.weights.Layers {
		out := make([]float64, len(l.Weights))
		for j, row := range l.Weights {
			z := l.Bias[j]
			for k, w := range row {
				z += w * x[k]
			}
			if li < len(m.weights.Layers)-1 {
				z = math.Max(0, z)
			}
			out[j] = z
		}
		x = out
	}

	p := sigmoid(x[0])
	if math.IsNaN(p) {
		return 0, fmt.Errorf("model produced NaN for %s", m.meta.Symbol)
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
