package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/mwilder/fraudscore/internal/features"
)

// artifact mirrors the JSON export of the trained pipeline.
type artifact struct {
	// Numeric features: weight applied to (x - mean) / scale.
	Numeric map[string]numericTerm `json:"numeric"`
	// Categorical features: per-value weights; unseen values contribute 0.
	Categorical map[string]map[string]float64 `json:"categorical"`
	Intercept   float64                       `json:"intercept"`
	// Threshold on the fraud probability, typically 0.5.
	Threshold float64 `json:"threshold"`
}

type numericTerm struct {
	Weight float64 `json:"weight"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// LogisticScorer is a logistic-regression classifier loaded from a JSON
// artifact. Scoring is deterministic and allocation-free.
type LogisticScorer struct {
	art artifact
}

// Compile-time interface check
var _ Scorer = (*LogisticScorer)(nil)

// Load reads a model artifact from disk. Callers should treat a load
// failure as a degraded start, not a fatal one: the server substitutes
// Unavailable and keeps running.
func Load(path string) (*LogisticScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if len(art.Numeric) == 0 && len(art.Categorical) == 0 {
		return nil, fmt.Errorf("model artifact %s has no weights", path)
	}
	if art.Threshold <= 0 || art.Threshold >= 1 {
		art.Threshold = 0.5
	}

	return &LogisticScorer{art: art}, nil
}

// Score returns 1 when the fraud probability meets the threshold.
func (s *LogisticScorer) Score(ctx context.Context, rec *features.Record) (int, error) {
	z := s.art.Intercept

	for name, term := range s.art.Numeric {
		x, ok := numericFeature(rec, name)
		if !ok {
			continue
		}
		scale := term.Scale
		if scale == 0 {
			scale = 1
		}
		z += term.Weight * (x - term.Mean) / scale
	}

	for name, weights := range s.art.Categorical {
		if w, ok := weights[categoricalFeature(rec, name)]; ok {
			z += w
		}
	}

	prob := 1.0 / (1.0 + math.Exp(-z))
	if prob >= s.art.Threshold {
		return LabelFraud, nil
	}
	return LabelLegitimate, nil
}

// numericFeature resolves a numeric feature by its training-time name.
func numericFeature(rec *features.Record, name string) (float64, bool) {
	switch name {
	case "amt":
		return rec.Amt, true
	case "age":
		return float64(rec.Age), true
	case "avg_amt_last_7d":
		return rec.AvgAmtLast7d, true
	case "merchant_fraud_rate":
		return rec.MerchantFraudRate, true
	case "hour":
		return float64(rec.Hour), true
	case "day_of_week":
		return float64(rec.DayOfWeek), true
	case "gender":
		return float64(rec.Gender), true
	case "city_pop":
		return float64(rec.CityPop), true
	case "lat":
		return rec.Lat, true
	case "long":
		return rec.Long, true
	case "merch_lat":
		return rec.MerchLat, true
	case "merch_long":
		return rec.MerchLong, true
	case "unix_time":
		return float64(rec.UnixTime), true
	default:
		return 0, false
	}
}

// categoricalFeature resolves a categorical feature by name; unknown names
// resolve to the empty string, which no weight table contains.
func categoricalFeature(rec *features.Record, name string) string {
	switch name {
	case "category":
		return rec.Category
	case "merchant":
		return rec.Merchant
	case "job":
		return rec.Job
	case "state":
		return rec.State
	default:
		return ""
	}
}
