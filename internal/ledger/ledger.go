// Package ledger holds the transaction log and the prediction ledger.
//
// Raw transactions arrive from external ingestion and are never mutated.
// Predictions are appended by the scoring pipeline, at most one per
// transaction number — uniqueness is enforced by the store, so two
// overlapping pipeline runs cannot both persist a result for the same
// transaction.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by point reads against an empty table.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyScored is returned when a prediction for the same
	// transaction number already exists.
	ErrAlreadyScored = errors.New("transaction already scored")

	// ErrDuplicateTransaction is returned when a raw transaction with the
	// same transaction number was already ingested.
	ErrDuplicateTransaction = errors.New("transaction already ingested")
)

// RawTransaction is an ingested, unscored card transaction.
//
// TransDateTransTime and DOB may be zero when the ingested row carried
// nulls; such rows are unprocessable by the feature builder but remain in
// the log.
type RawTransaction struct {
	ID                 int64     `json:"id"`
	TransDateTransTime time.Time `json:"trans_date_trans_time"`
	CCNum              int64     `json:"cc_num"`
	Merchant           string    `json:"merchant"`
	Category           string    `json:"category"`
	Amt                float64   `json:"amt"`
	First              string    `json:"first"`
	Last               string    `json:"last"`
	Gender             string    `json:"gender"`
	Street             string    `json:"street"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Zip                int       `json:"zip"`
	Lat                float64   `json:"lat"`
	Long               float64   `json:"long"`
	CityPop            int64     `json:"city_pop"`
	Job                string    `json:"job"`
	DOB                time.Time `json:"dob"`
	TransNum           string    `json:"trans_num"`
	UnixTime           int64     `json:"unix_time"`
	MerchLat           float64   `json:"merch_lat"`
	MerchLong          float64   `json:"merch_long"`
	CreatedAt          time.Time `json:"created_at"`
}

// Prediction is a scored transaction: a copy of the raw fields plus the
// binary fraud label. Gender is stored integer-encoded (M=0, F=1, other=0),
// matching what the scorer consumed.
type Prediction struct {
	ID                 int64     `json:"id"`
	TransDateTransTime time.Time `json:"trans_date_trans_time"`
	CCNum              int64     `json:"cc_num"`
	Merchant           string    `json:"merchant"`
	Category           string    `json:"category"`
	Amt                float64   `json:"amt"`
	First              string    `json:"first"`
	Last               string    `json:"last"`
	Gender             int       `json:"gender"`
	Street             string    `json:"street"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Zip                int       `json:"zip"`
	Lat                float64   `json:"lat"`
	Long               float64   `json:"long"`
	CityPop            int64     `json:"city_pop"`
	Job                string    `json:"job"`
	DOB                time.Time `json:"dob"`
	TransNum           string    `json:"trans_num"`
	UnixTime           int64     `json:"unix_time"`
	MerchLat           float64   `json:"merch_lat"`
	MerchLong          float64   `json:"merch_long"`
	Prediction         int       `json:"prediction"`
	CreatedAt          time.Time `json:"created_at"`
}

// Store persists raw transactions and predictions.
type Store interface {
	// InsertRaw appends a raw transaction and assigns its id and
	// created_at. Returns ErrDuplicateTransaction on a repeated trans_num.
	InsertRaw(ctx context.Context, tx *RawTransaction) error

	// LatestRaw returns the most recently ingested raw transaction,
	// scored or not. ErrNotFound when the log is empty.
	LatestRaw(ctx context.Context) (*RawTransaction, error)

	// NextUnscored returns the most recently ingested raw transaction
	// whose trans_num has no prediction yet (anti-join on trans_num,
	// ordered by id descending, limit 1). ErrNotFound when everything
	// is scored.
	NextUnscored(ctx context.Context) (*RawTransaction, error)

	// InsertPrediction appends a prediction as a single conditional
	// write keyed by trans_num. Returns ErrAlreadyScored without writing
	// anything when a prediction for that transaction already exists;
	// assigns id and created_at on success.
	InsertPrediction(ctx context.Context, p *Prediction) error

	// LatestPrediction returns the newest prediction by creation time.
	// ErrNotFound when none exist.
	LatestPrediction(ctx context.Context) (*Prediction, error)

	// ListPredictions returns up to limit predictions, newest first.
	ListPredictions(ctx context.Context, limit int) ([]*Prediction, error)
}
