// Package model loads and evaluates the direction-scoring models. Training
// happens offline; this package only runs inference on exported weights.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/models"
)

// Model scores the probability that price moves up over the model horizon.
type Model interface {
	PredictProba(rows []indicators.Features) (float64, error)
	Quality() models.ModelQuality
}

// Metrics is the validation block written by the training job.
type Metrics struct {
	ValF1           float64 `json:"val_f1"`
	ValPrecision    float64 `json:"val_precision"`
	ValRecall       float64 `json:"val_recall"`
	ValPositiveRate float64 `json:"val_positive_rate"`
}

// Metadata describes a trained model directory.
type Metadata struct {
	ModelName      string   `json:"model_name"`
	ModelVersion   string   `json:"model_version"`
	Symbol         string   `json:"symbol"`
	FeatureColumns []string `json:"feature_columns"`
	Timeframe      string   `json:"timeframe"`
	Horizon        int      `json:"horizon"`
	Metrics        Metrics  `json:"metrics"`
}

// Quality returns the admission metrics.
func (m Metadata) Quality() models.ModelQuality {
	return models.ModelQuality{
		F1:        m.Metrics.ValF1,
		Precision: m.Metrics.ValPrecision,
		Recall:    m.Metrics.ValRecall,
	}
}

// Dir returns the model directory for symbol, e.g. models/BTC_USDT.
func Dir(modelsDir, symbol string) string {
	return filepath.Join(modelsDir, models.DirSymbol(symbol))
}

// LoadMetadata reads <modelsDir>/<BASE_QUOTE>/metadata.json.
func LoadMetadata(modelsDir, symbol string) (*Metadata, error) {
	path := filepath.Join(Dir(modelsDir, symbol), "metadata.json")
	var md Metadata
	if err := readJSON(path, &md); err != nil {
		return nil, errors.Wrapf(err, "model metadata for %s", symbol)
	}
	return &md, nil
}

// Thresholds are the minimum validation metrics a model needs to trade.
type Thresholds struct {
	MinF1        float64
	MinPrecision float64
	MinRecall    float64
}

// Admit reports whether q meets every minimum.
func (t Thresholds) Admit(q models.ModelQuality) bool {
	return q.F1 >= t.MinF1 && q.Precision >= t.MinPrecision && q.Recall >= t.MinRecall
}

func readJSON(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrModelUnavailable, path)
		}
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
