// Package model loads the trained fraud classifier artifact and exposes it
// as an opaque score function.
//
// The artifact is a JSON export of the trained pipeline: standardization
// parameters and weights for the numeric features, per-value weights for the
// categorical features, an intercept, and a decision threshold. The pipeline
// treats the scorer as a black box returning 0 (legitimate) or 1 (fraud).
package model

import (
	"context"
	"errors"

	"github.com/mwilder/fraudscore/internal/features"
)

// ErrModelUnavailable is returned for every scoring attempt when no artifact
// was loaded. The process keeps serving; only scoring requests fail.
var ErrModelUnavailable = errors.New("model unavailable")

// Labels produced by the classifier.
const (
	LabelLegitimate = 0
	LabelFraud      = 1
)

// Scorer classifies a feature record.
type Scorer interface {
	Score(ctx context.Context, rec *features.Record) (int, error)
}

// Unavailable is a Scorer placeholder used when the artifact failed to
// load; every call fails with ErrModelUnavailable.
type Unavailable struct{}

func (Unavailable) Score(ctx context.Context, rec *features.Record) (int, error) {
	return 0, ErrModelUnavailable
}

var _ Scorer = Unavailable{}
