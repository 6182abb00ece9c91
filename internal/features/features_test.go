package features

import (
	"errors"
	"testing"
	"time"

	"github.com/mwilder/fraudscore/internal/enrichment"
	"github.com/mwilder/fraudscore/internal/ledger"
)

func emptyStore() *enrichment.Store {
	return enrichment.NewStore(map[int64]float64{}, map[string]float64{})
}

func baseRaw() *ledger.RawTransaction {
	return &ledger.RawTransaction{
		TransDateTransTime: time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC), // Sunday
		CCNum:              111,
		Merchant:           "Acme",
		Category:           "grocery_pos",
		Amt:                120.50,
		Gender:             "F",
		DOB:                time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		TransNum:           "T1",
	}
}

func TestBuildDerivedFeatures(t *testing.T) {
	store := enrichment.NewStore(
		map[int64]float64{111: 85.20},
		map[string]float64{"Acme": 0.031},
	)

	rec, err := Build(baseRaw(), store)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if rec.Age != 34 {
		t.Errorf("age = %d, want 34", rec.Age)
	}
	if rec.Hour != 14 {
		t.Errorf("hour = %d, want 14", rec.Hour)
	}
	if rec.DayOfWeek != 6 { // Sunday under Monday=0 convention
		t.Errorf("day_of_week = %d, want 6", rec.DayOfWeek)
	}
	if rec.Gender != GenderFemale {
		t.Errorf("gender = %d, want %d", rec.Gender, GenderFemale)
	}
	if rec.AvgAmtLast7d != 85.20 {
		t.Errorf("avg_amt_last_7d = %f, want 85.20", rec.AvgAmtLast7d)
	}
	if rec.MerchantFraudRate != 0.031 {
		t.Errorf("merchant_fraud_rate = %f, want 0.031", rec.MerchantFraudRate)
	}
	if rec.Amt != 120.50 || rec.Merchant != "Acme" || rec.CCNum != 111 {
		t.Error("passthrough fields not copied")
	}
}

func TestBuildAgeIsNaiveYearSubtraction(t *testing.T) {
	// Birthday later in the year than the transaction date: the naive
	// subtraction still applies, no month/day correction.
	raw := baseRaw()
	raw.DOB = time.Date(1990, 12, 31, 0, 0, 0, 0, time.UTC)

	rec, err := Build(raw, emptyStore())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec.Age != 34 {
		t.Errorf("age = %d, want naive 2024-1990 = 34", rec.Age)
	}
}

func TestBuildGenderEncoding(t *testing.T) {
	cases := map[string]int{
		"M": 0,
		"F": 1,
		"X": 0,
		"":  0,
	}
	for input, want := range cases {
		if got := EncodeGender(input); got != want {
			t.Errorf("EncodeGender(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestBuildDayOfWeekAllDays(t *testing.T) {
	// 2024-03-04 is a Monday.
	for offset := 0; offset < 7; offset++ {
		raw := baseRaw()
		raw.TransDateTransTime = time.Date(2024, 3, 4+offset, 9, 0, 0, 0, time.UTC)
		rec, err := Build(raw, emptyStore())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if rec.DayOfWeek != offset {
			t.Errorf("day %d: day_of_week = %d, want %d", 4+offset, rec.DayOfWeek, offset)
		}
	}
}

func TestBuildDefaultsWhenUnenriched(t *testing.T) {
	rec, err := Build(baseRaw(), emptyStore())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec.AvgAmtLast7d != 0.0 || rec.MerchantFraudRate != 0.0 {
		t.Errorf("expected 0.0 defaults, got %f / %f", rec.AvgAmtLast7d, rec.MerchantFraudRate)
	}
	if rec.MerchantRiskOutcome != enrichment.OutcomeDefault {
		t.Errorf("outcome = %s, want default", rec.MerchantRiskOutcome)
	}
}

func TestBuildDegradedSourceOutcome(t *testing.T) {
	rec, err := Build(baseRaw(), enrichment.NewStore(nil, nil))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec.AvgAmtOutcome != enrichment.OutcomeUnavailable {
		t.Errorf("outcome = %s, want unavailable", rec.AvgAmtOutcome)
	}
	if rec.AvgAmtLast7d != 0.0 {
		t.Errorf("degraded value = %f, want 0.0", rec.AvgAmtLast7d)
	}
}

func TestBuildMalformed(t *testing.T) {
	noTime := baseRaw()
	noTime.TransDateTransTime = time.Time{}
	if _, err := Build(noTime, emptyStore()); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("missing timestamp: got %v, want ErrMalformedInput", err)
	}

	noDOB := baseRaw()
	noDOB.DOB = time.Time{}
	if _, err := Build(noDOB, emptyStore()); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("missing dob: got %v, want ErrMalformedInput", err)
	}
}

func TestBuildDeterministic(t *testing.T) {
	store := enrichment.NewStore(map[int64]float64{111: 85.20}, map[string]float64{"Acme": 0.031})
	first, err := Build(baseRaw(), store)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Build(baseRaw(), store)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if *again != *first {
			t.Fatal("build is not deterministic")
		}
	}
}
