// Package pipeline orchestrates transaction scoring.
//
// One invocation selects the newest unscored transaction, derives its
// feature vector, runs the classifier, and appends the result to the
// prediction ledger. The only write is the final conditional append, so an
// abandoned invocation leaves no partial state, and two overlapping
// invocations cannot both score the same transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mwilder/fraudscore/internal/enrichment"
	"github.com/mwilder/fraudscore/internal/features"
	"github.com/mwilder/fraudscore/internal/ledger"
	"github.com/mwilder/fraudscore/internal/metrics"
	"github.com/mwilder/fraudscore/internal/model"
	"github.com/mwilder/fraudscore/internal/traces"
)

// ErrNoNewTransaction signals an empty backlog. It is the normal terminal
// state of an invocation, not a failure.
var ErrNoNewTransaction = errors.New("no new transaction")

// MalformedError reports a selected transaction that cannot be scored. The
// transaction stays unscored and selectable; quarantining is a manual
// operation driven by the warn log and the malformed run counter.
type MalformedError struct {
	TransNum string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("transaction %s unprocessable: %v", e.TransNum, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Service runs the scoring pipeline. Stateless between invocations: the
// only state crossing runs is the ledger itself.
type Service struct {
	store      ledger.Store
	enrichment *enrichment.Store
	scorer     model.Scorer
	logger     *slog.Logger
}

// NewService creates the pipeline service. A nil scorer marks the model
// artifact as unavailable; every run then fails with ErrModelUnavailable
// while the rest of the service keeps working.
func NewService(store ledger.Store, enrich *enrichment.Store, scorer model.Scorer, logger *slog.Logger) *Service {
	if scorer == nil {
		scorer = model.Unavailable{}
	}
	return &Service{
		store:      store,
		enrichment: enrich,
		scorer:     scorer,
		logger:     logger,
	}
}

// Store returns the underlying ledger store (for read endpoints).
func (s *Service) Store() ledger.Store {
	return s.store
}

// RunOnce scores the newest unscored transaction and persists the result.
//
// Returns ErrNoNewTransaction when everything is scored,
// model.ErrModelUnavailable when the artifact never loaded, a
// *MalformedError when the selected transaction lacks required fields, and
// ledger.ErrAlreadyScored when a concurrent invocation persisted first.
// The ledger gains no row in any failure case.
func (s *Service) RunOnce(ctx context.Context) (*ledger.Prediction, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "pipeline.run_once")
	defer span.End()

	raw, err := s.store.NextUnscored(ctx)
	if errors.Is(err, ledger.ErrNotFound) {
		metrics.PipelineRunsTotal.WithLabelValues("empty").Inc()
		return nil, ErrNoNewTransaction
	}
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("select next unscored: %w", err)
	}
	span.SetAttributes(traces.TransNum(raw.TransNum), traces.Merchant(raw.Merchant))

	rec, err := features.Build(raw, s.enrichment)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("malformed").Inc()
		s.logger.Warn("transaction unprocessable, left unscored",
			"trans_num", raw.TransNum, "error", err)
		return nil, &MalformedError{TransNum: raw.TransNum, Err: err}
	}
	metrics.EnrichmentLookupsTotal.WithLabelValues("avg_amt", string(rec.AvgAmtOutcome)).Inc()
	metrics.EnrichmentLookupsTotal.WithLabelValues("merchant_risk", string(rec.MerchantRiskOutcome)).Inc()

	label, err := s.scorer.Score(ctx, rec)
	if errors.Is(err, model.ErrModelUnavailable) {
		metrics.PipelineRunsTotal.WithLabelValues("model_unavailable").Inc()
		return nil, err
	}
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("score transaction %s: %w", raw.TransNum, err)
	}
	span.SetAttributes(traces.Label(label))

	pred := predictionFromRaw(raw, rec, label)
	if err := s.store.InsertPrediction(ctx, pred); err != nil {
		if errors.Is(err, ledger.ErrAlreadyScored) {
			metrics.PipelineRunsTotal.WithLabelValues("conflict").Inc()
			s.logger.Info("concurrent invocation scored first",
				"trans_num", raw.TransNum)
			return nil, err
		}
		metrics.PipelineRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist prediction for %s: %w", raw.TransNum, err)
	}

	metrics.PipelineRunsTotal.WithLabelValues("scored").Inc()
	metrics.PredictionsTotal.WithLabelValues(labelName(label)).Inc()
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("transaction scored",
		"trans_num", pred.TransNum,
		"prediction", pred.Prediction,
		"prediction_id", pred.ID,
		"merchant", pred.Merchant,
	)
	return pred, nil
}

// predictionFromRaw copies the raw fields into a prediction row, with
// gender in its encoded form.
func predictionFromRaw(raw *ledger.RawTransaction, rec *features.Record, label int) *ledger.Prediction {
	return &ledger.Prediction{
		TransDateTransTime: raw.TransDateTransTime,
		CCNum:              raw.CCNum,
		Merchant:           raw.Merchant,
		Category:           raw.Category,
		Amt:                raw.Amt,
		First:              raw.First,
		Last:               raw.Last,
		Gender:             rec.Gender,
		Street:             raw.Street,
		City:               raw.City,
		State:              raw.State,
		Zip:                raw.Zip,
		Lat:                raw.Lat,
		Long:               raw.Long,
		CityPop:            raw.CityPop,
		Job:                raw.Job,
		DOB:                raw.DOB,
		TransNum:           raw.TransNum,
		UnixTime:           raw.UnixTime,
		MerchLat:           raw.MerchLat,
		MerchLong:          raw.MerchLong,
		Prediction:         label,
	}
}

func labelName(label int) string {
	if label == model.LabelFraud {
		return "fraud"
	}
	return "legitimate"
}
