package model

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/models"
	"autotrader/internal/regime"
)

type fixedModel struct {
	p   float64
	err error
}

func (m fixedModel) PredictProba([]indicators.Features) (float64, error) { return m.p, m.err }
func (m fixedModel) Quality() models.ModelQuality                       { return models.ModelQuality{F1: 0.3} }

// identityWeights maps the first feature straight to the logit.
func identityWeights(n int) Weights {
	row := make([]float64, n)
	row[0] = 1
	mean := make([]float64, n)
	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}
	return Weights{
		Scaler: Scaler{Mean: mean, Scale: scale},
		Layers: []Layer{{Weights: [][]float64{row}, Bias: []float64{0}}},
	}
}

func TestMLPPredict(t *testing.T) {
	meta := Metadata{Symbol: "BTC/USDT", FeatureColumns: []string{"rsi", "adx"}}
	m, err := NewMLP(meta, identityWeights(2))
	require.NoError(t, err)

	p, err := m.PredictProba([]indicators.Features{{RSI14: 0, ADX14: 40}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	p, err = m.PredictProba([]indicators.Features{{RSI14: 50}, {RSI14: 2}})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-2)), p, 1e-12)
}

func TestMLPHiddenLayerReLU(t *testing.T) {
	meta := Metadata{FeatureColumns: []string{"rsi"}}
	w := Weights{
		Scaler: Scaler{Mean: []float64{0}, Scale: []float64{1}},
		Layers: []Layer{
			{Weights: [][]float64{{1}, {-1}}, Bias: []float64{0, 0}},
			{Weights: [][]float64{{1, 1}}, Bias: []float64{0}},
		},
	}
	m, err := NewMLP(meta, w)
	require.NoError(t, err)

	// relu(x) + relu(-x) = |x|
	p, err := m.PredictProba([]indicators.Features{{RSI14: -3}})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-3)), p, 1e-12)
}

func TestNewMLPRejectsBadShapes(t *testing.T) {
	meta := Metadata{FeatureColumns: []string{"rsi", "adx"}}

	_, err := NewMLP(meta, Weights{})
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)

	w := identityWeights(3)
	_, err = NewMLP(meta, w)
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)

	w = identityWeights(2)
	w.Layers[0].Weights = append(w.Layers[0].Weights, []float64{0, 0})
	w.Layers[0].Bias = append(w.Layers[0].Bias, 0)
	_, err = NewMLP(meta, w)
	assert.ErrorIs(t, err, errors.ErrModelUnavailable, "two output units")
}

func TestMLPErrors(t *testing.T) {
	m, err := NewMLP(Metadata{FeatureColumns: []string{"bogus"}}, identityWeights(1))
	require.NoError(t, err)

	_, err = m.PredictProba(nil)
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	_, err = m.PredictProba([]indicators.Features{{}})
	assert.ErrorIs(t, err, errors.ErrPermanent)
}

func TestLoadMLP(t *testing.T) {
	dir := t.TempDir()
	symDir := filepath.Join(dir, "ETH_USDT")
	require.NoError(t, os.MkdirAll(symDir, 0o755))

	meta := Metadata{
		Symbol:         "ETH/USDT",
		FeatureColumns: []string{"rsi"},
		Metrics:        Metrics{ValF1: 0.31, ValPrecision: 0.4, ValRecall: 0.25},
	}
	writeJSON(t, filepath.Join(symDir, "metadata.json"), meta)
	writeJSON(t, filepath.Join(symDir, "weights.json"), identityWeights(1))

	m, err := LoadMLP(dir, "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, models.ModelQuality{F1: 0.31, Precision: 0.4, Recall: 0.25}, m.Quality())

	_, err = LoadMLP(dir, "SOL/USDT")
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)
}

func TestThresholdsAdmit(t *testing.T) {
	th := Thresholds{MinF1: 0.1, MinPrecision: 0.1, MinRecall: 0.1}
	assert.True(t, th.Admit(models.ModelQuality{F1: 0.1, Precision: 0.2, Recall: 0.3}))
	assert.False(t, th.Admit(models.ModelQuality{F1: 0.3, Precision: 0.05, Recall: 0.3}))
	assert.False(t, th.Admit(models.ModelQuality{}))
}

func TestEnsemble(t *testing.T) {
	ctxRows := []indicators.Features{{}}
	e := NewEnsemble(fixedModel{p: 0.8}, fixedModel{p: 0.4}, func() []indicators.Features { return ctxRows })

	trending := []indicators.Features{{ADX14: 30, Close: 110, EMA200: 100}}
	p, err := e.PredictProba(trending)
	require.NoError(t, err)
	assert.InDelta(t, 0.7*0.8+0.3*0.4, p, 1e-12)

	ranging := []indicators.Features{{ADX14: 10}}
	p, err = e.PredictProba(ranging)
	require.NoError(t, err)
	assert.InDelta(t, 0.85*0.8+0.15*0.4, p, 1e-12)

	ctxRows = nil
	p, err = e.PredictProba(ranging)
	require.NoError(t, err)
	assert.Equal(t, 0.8, p)
	assert.Equal(t, 0.3, e.Quality().F1)
}

func TestBlendWeightsSumToOne(t *testing.T) {
	for _, r := range []regime.Regime{regime.Trending, regime.Ranging, regime.Choppy} {
		wp, wc := blendWeights(r)
		assert.InDelta(t, 1.0, wp+wc, 1e-12, "regime %s", r)
		assert.Greater(t, wp, wc, "regime %s", r)
	}
	wp, _ := blendWeights(regime.Trending)
	assert.Equal(t, 0.7, wp)
}

func TestEnsembleContextError(t *testing.T) {
	e := NewEnsemble(fixedModel{p: 0.8}, fixedModel{err: errors.ErrTimeout},
		func() []indicators.Features { return []indicators.Features{{}} })
	_, err := e.PredictProba([]indicators.Features{{}})
	assert.ErrorIs(t, err, errors.ErrTimeout)
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
