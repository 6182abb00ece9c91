// Package features derives the fixed-schema model input from a raw
// transaction and the enrichment snapshot.
package features

import (
	"errors"
	"fmt"
	"time"

	"github.com/mwilder/fraudscore/internal/enrichment"
	"github.com/mwilder/fraudscore/internal/ledger"
)

// ErrMalformedInput is returned when a raw transaction lacks the fields
// required for feature derivation. The transaction is left unscored; the
// builder never guesses.
var ErrMalformedInput = errors.New("malformed transaction")

// Gender encoding consumed by the model: M=0, F=1, anything else 0.
const (
	GenderMale   = 0
	GenderFemale = 1
)

// Record is the feature vector consumed by the scorer. It is ephemeral:
// only the derived prediction is ever persisted.
type Record struct {
	// Derived features
	Age               int
	AvgAmtLast7d      float64
	MerchantFraudRate float64
	Hour              int // 0-23
	DayOfWeek         int // Monday=0 .. Sunday=6
	Gender            int

	// Enrichment outcomes, for observability only
	AvgAmtOutcome       enrichment.Outcome
	MerchantRiskOutcome enrichment.Outcome

	// Passthrough fields
	CCNum     int64
	Merchant  string
	Category  string
	Amt       float64
	State     string
	Zip       int
	Lat       float64
	Long      float64
	CityPop   int64
	Job       string
	UnixTime  int64
	MerchLat  float64
	MerchLong float64
}

// Build derives the feature record for a raw transaction. Deterministic and
// side-effect free; the enrichment store is read-only.
//
// Age is the naive year difference between transaction time and birth date,
// with no month/day adjustment. That matches how the model was trained, so
// it must not be "fixed" here.
func Build(raw *ledger.RawTransaction, store *enrichment.Store) (*Record, error) {
	if raw.TransDateTransTime.IsZero() {
		return nil, fmt.Errorf("%w: missing transaction timestamp", ErrMalformedInput)
	}
	if raw.DOB.IsZero() {
		return nil, fmt.Errorf("%w: missing date of birth", ErrMalformedInput)
	}

	avgAmt := store.LookupAvgAmount(raw.CCNum)
	merchantRisk := store.LookupMerchantRisk(raw.Merchant)

	return &Record{
		Age:               raw.TransDateTransTime.Year() - raw.DOB.Year(),
		AvgAmtLast7d:      avgAmt.Value,
		MerchantFraudRate: merchantRisk.Value,
		Hour:              raw.TransDateTransTime.Hour(),
		DayOfWeek:         mondayIndexed(raw.TransDateTransTime.Weekday()),
		Gender:            EncodeGender(raw.Gender),

		AvgAmtOutcome:       avgAmt.Outcome,
		MerchantRiskOutcome: merchantRisk.Outcome,

		CCNum:     raw.CCNum,
		Merchant:  raw.Merchant,
		Category:  raw.Category,
		Amt:       raw.Amt,
		State:     raw.State,
		Zip:       raw.Zip,
		Lat:       raw.Lat,
		Long:      raw.Long,
		CityPop:   raw.CityPop,
		Job:       raw.Job,
		UnixTime:  raw.UnixTime,
		MerchLat:  raw.MerchLat,
		MerchLong: raw.MerchLong,
	}, nil
}

// EncodeGender maps "M" to 0 and "F" to 1; any other value, including the
// empty string, encodes to 0.
func EncodeGender(gender string) int {
	if gender == "F" {
		return GenderFemale
	}
	return GenderMale
}

// mondayIndexed converts Go's Sunday=0 weekday to the Monday=0 convention
// the model was trained with.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}
