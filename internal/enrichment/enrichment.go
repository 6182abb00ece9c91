// Package enrichment provides the read-only feature statistics consumed by
// the scoring pipeline: rolling average spend per card and fraud rate per
// merchant.
//
// The snapshot is loaded once at startup and never mutated, so lookups are
// safe for concurrent use without locking. A missing key yields the default
// value 0.0 rather than an error; a missing source degrades the whole table
// to defaults while keeping the pipeline usable. Lookups carry an Outcome so
// callers can tell a key miss from a missing source.
package enrichment

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

// DefaultValue is returned for any lookup that cannot be resolved.
const DefaultValue = 0.0

// Outcome classifies a lookup result.
type Outcome string

const (
	// OutcomeFound means the key was present in the snapshot.
	OutcomeFound Outcome = "found"
	// OutcomeDefault means the source loaded but the key was absent.
	OutcomeDefault Outcome = "default"
	// OutcomeUnavailable means the source itself never loaded.
	OutcomeUnavailable Outcome = "unavailable"
)

// Lookup is the result of a snapshot lookup. Value is always usable as a
// feature input regardless of Outcome.
type Lookup struct {
	Value   float64
	Outcome Outcome
}

// Store is an immutable snapshot of enrichment statistics.
type Store struct {
	avgAmt            map[int64]float64
	merchantRisk      map[string]float64
	avgAvailable      bool
	merchantAvailable bool
}

// NewStore builds a store from explicit tables, mainly for tests. A nil
// table marks that source unavailable.
func NewStore(avgAmt map[int64]float64, merchantRisk map[string]float64) *Store {
	return &Store{
		avgAmt:            avgAmt,
		merchantRisk:      merchantRisk,
		avgAvailable:      avgAmt != nil,
		merchantAvailable: merchantRisk != nil,
	}
}

// LookupAvgAmount returns the rolling 7-day average spend for a card.
func (s *Store) LookupAvgAmount(ccNum int64) Lookup {
	if !s.avgAvailable {
		return Lookup{Value: DefaultValue, Outcome: OutcomeUnavailable}
	}
	if v, ok := s.avgAmt[ccNum]; ok {
		return Lookup{Value: v, Outcome: OutcomeFound}
	}
	return Lookup{Value: DefaultValue, Outcome: OutcomeDefault}
}

// LookupMerchantRisk returns the historical fraud rate for a merchant.
func (s *Store) LookupMerchantRisk(merchant string) Lookup {
	if !s.merchantAvailable {
		return Lookup{Value: DefaultValue, Outcome: OutcomeUnavailable}
	}
	if v, ok := s.merchantRisk[merchant]; ok {
		return Lookup{Value: v, Outcome: OutcomeFound}
	}
	return Lookup{Value: DefaultValue, Outcome: OutcomeDefault}
}

// AvgAmountAvailable reports whether the avg-amount source loaded.
func (s *Store) AvgAmountAvailable() bool { return s.avgAvailable }

// MerchantRiskAvailable reports whether the merchant-risk source loaded.
func (s *Store) MerchantRiskAvailable() bool { return s.merchantAvailable }

// Sizes returns the entry counts of both tables.
func (s *Store) Sizes() (avgAmt, merchantRisk int) {
	return len(s.avgAmt), len(s.merchantRisk)
}

// LoadCSV builds a store from the two CSV snapshot files. A file that is
// absent or unreadable leaves its table unavailable instead of failing
// startup; the pipeline then runs with reduced feature fidelity.
func LoadCSV(avgPath, merchantPath string, logger *slog.Logger) *Store {
	s := &Store{}

	avgAmt, err := loadAvgAmountCSV(avgPath)
	if err != nil {
		logger.Warn("avg-amount snapshot unavailable, using defaults",
			"path", avgPath, "error", err)
	} else {
		s.avgAmt = avgAmt
		s.avgAvailable = true
	}

	merchantRisk, err := loadMerchantRiskCSV(merchantPath)
	if err != nil {
		logger.Warn("merchant-risk snapshot unavailable, using defaults",
			"path", merchantPath, "error", err)
	} else {
		s.merchantRisk = merchantRisk
		s.merchantAvailable = true
	}

	return s
}

func loadAvgAmountCSV(path string) (map[int64]float64, error) {
	rows, err := readCSV(path, "cc_num", "avg_amt_last_7d")
	if err != nil {
		return nil, err
	}
	table := make(map[int64]float64, len(rows))
	for _, row := range rows {
		ccNum, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		amt, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		table[ccNum] = amt
	}
	return table, nil
}

func loadMerchantRiskCSV(path string) (map[string]float64, error) {
	rows, err := readCSV(path, "merchant", "merchant_fraud_rate")
	if err != nil {
		return nil, err
	}
	table := make(map[string]float64, len(rows))
	for _, row := range rows {
		rate, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		table[row[0]] = rate
	}
	return table, nil
}

// readCSV returns the values of the two named columns for every data row.
func readCSV(path string, keyCol, valCol string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	keyIdx, valIdx := -1, -1
	for i, name := range header {
		switch name {
		case keyCol:
			keyIdx = i
		case valCol:
			valIdx = i
		}
	}
	if keyIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf("missing columns %q/%q in %s", keyCol, valCol, path)
	}

	var rows [][2]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, [2]string{record[keyIdx], record[valIdx]})
	}
	return rows, nil
}
