package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mwilder/fraudscore/internal/enrichment"
	"github.com/mwilder/fraudscore/internal/features"
	"github.com/mwilder/fraudscore/internal/ledger"
	"github.com/mwilder/fraudscore/internal/model"
)

// stubScorer returns a fixed label and records how often it ran.
type stubScorer struct {
	label int
	calls int
}

func (s *stubScorer) Score(ctx context.Context, rec *features.Record) (int, error) {
	s.calls++
	return s.label, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func emptyEnrichment() *enrichment.Store {
	return enrichment.NewStore(map[int64]float64{}, map[string]float64{})
}

func sampleRaw(transNum string) *ledger.RawTransaction {
	return &ledger.RawTransaction{
		TransDateTransTime: time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC), // Sunday
		CCNum:              111,
		Merchant:           "Acme",
		Category:           "grocery_pos",
		Amt:                120.50,
		Gender:             "F",
		DOB:                time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		TransNum:           transNum,
		UnixTime:           1710079200,
	}
}

func TestRunOnceScoresLatestTransaction(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	if err := store.InsertRaw(ctx, sampleRaw("T1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc := NewService(store, emptyEnrichment(), &stubScorer{label: 1}, testLogger())

	pred, err := svc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if pred.TransNum != "T1" {
		t.Errorf("trans_num = %s", pred.TransNum)
	}
	if pred.Prediction != 1 {
		t.Errorf("prediction = %d, want 1", pred.Prediction)
	}
	if pred.ID == 0 {
		t.Error("prediction id not assigned")
	}
	if pred.CreatedAt.IsZero() {
		t.Error("created_at not assigned")
	}
	if pred.Gender != features.GenderFemale {
		t.Errorf("gender = %d, want encoded %d", pred.Gender, features.GenderFemale)
	}
	if pred.Amt != 120.50 || pred.Merchant != "Acme" {
		t.Error("raw fields not copied")
	}

	// Second invocation finds nothing to do.
	if _, err := svc.RunOnce(ctx); !errors.Is(err, ErrNoNewTransaction) {
		t.Fatalf("expected ErrNoNewTransaction, got %v", err)
	}
}

func TestRunOncePrefersNewestUnscored(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	store.InsertRaw(ctx, sampleRaw("T1"))
	store.InsertRaw(ctx, sampleRaw("T2"))

	svc := NewService(store, emptyEnrichment(), &stubScorer{}, testLogger())

	pred, err := svc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if pred.TransNum != "T2" {
		t.Errorf("expected newest T2 first, got %s", pred.TransNum)
	}

	pred, err = svc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if pred.TransNum != "T1" {
		t.Errorf("expected T1 second, got %s", pred.TransNum)
	}
}

func TestRunOnceEmptyLedger(t *testing.T) {
	svc := NewService(ledger.NewMemoryStore(), emptyEnrichment(), &stubScorer{}, testLogger())
	if _, err := svc.RunOnce(context.Background()); !errors.Is(err, ErrNoNewTransaction) {
		t.Fatalf("expected ErrNoNewTransaction, got %v", err)
	}
}

func TestRunOnceModelUnavailable(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	store.InsertRaw(ctx, sampleRaw("T1"))

	svc := NewService(store, emptyEnrichment(), nil, testLogger())

	_, err := svc.RunOnce(ctx)
	if !errors.Is(err, model.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}

	// The ledger must gain no row.
	if preds, _ := store.ListPredictions(ctx, 10); len(preds) != 0 {
		t.Fatalf("ledger gained %d rows on a failed run", len(preds))
	}
	// The transaction stays selectable.
	if next, err := store.NextUnscored(ctx); err != nil || next.TransNum != "T1" {
		t.Fatalf("transaction no longer selectable: %v", err)
	}
}

func TestRunOnceMalformedTransaction(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	raw := sampleRaw("T1")
	raw.DOB = time.Time{}
	store.InsertRaw(ctx, raw)

	scorer := &stubScorer{}
	svc := NewService(store, emptyEnrichment(), scorer, testLogger())

	_, err := svc.RunOnce(ctx)
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
	if malformed.TransNum != "T1" {
		t.Errorf("malformed trans_num = %s", malformed.TransNum)
	}
	if !errors.Is(err, features.ErrMalformedInput) {
		t.Error("MalformedError must unwrap to ErrMalformedInput")
	}
	if scorer.calls != 0 {
		t.Error("scorer must not run on malformed input")
	}

	// Malformed rows stay unscored and selectable (retried forever).
	if _, err := store.NextUnscored(ctx); err != nil {
		t.Fatalf("malformed transaction should remain selectable: %v", err)
	}
	if preds, _ := store.ListPredictions(ctx, 10); len(preds) != 0 {
		t.Fatal("ledger gained a row for a malformed transaction")
	}
}

func TestRunOnceEnrichmentDefaults(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	store.InsertRaw(ctx, sampleRaw("T1"))

	// "Acme" has no entry in the merchant-risk snapshot.
	var seen *features.Record
	svc := NewService(store, emptyEnrichment(), scorerFunc(func(rec *features.Record) int {
		seen = rec
		return 0
	}), testLogger())

	if _, err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if seen == nil {
		t.Fatal("scorer never ran")
	}
	if seen.MerchantFraudRate != 0.0 {
		t.Errorf("merchant_fraud_rate = %f, want default 0.0", seen.MerchantFraudRate)
	}
	if seen.Hour != 14 || seen.DayOfWeek != 6 || seen.Age != 34 {
		t.Errorf("derived features wrong: hour=%d dow=%d age=%d", seen.Hour, seen.DayOfWeek, seen.Age)
	}
}

// scorerFunc adapts a function to the model.Scorer interface.
type scorerFunc func(rec *features.Record) int

func (f scorerFunc) Score(ctx context.Context, rec *features.Record) (int, error) {
	return f(rec), nil
}

func TestTimerDrainsBacklog(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, num := range []string{"T1", "T2", "T3"} {
		store.InsertRaw(ctx, sampleRaw(num))
	}

	svc := NewService(store, emptyEnrichment(), &stubScorer{}, testLogger())
	timer := NewTimer(svc, 5*time.Millisecond, testLogger())
	go timer.Start(ctx)
	defer timer.Stop()

	deadline := time.After(2 * time.Second)
	for {
		preds, _ := store.ListPredictions(ctx, 10)
		if len(preds) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("backlog not drained, %d predictions", len(preds))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTimerStopsAtMalformedHead(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	store.InsertRaw(ctx, sampleRaw("T1"))
	bad := sampleRaw("T2")
	bad.DOB = time.Time{}
	store.InsertRaw(ctx, bad)

	scorer := &stubScorer{}
	svc := NewService(store, emptyEnrichment(), scorer, testLogger())
	timer := NewTimer(svc, time.Minute, testLogger())

	// One tick: the malformed newest row blocks the drain before T1.
	timer.drain(ctx)

	if scorer.calls != 0 {
		t.Errorf("scorer ran %d times behind a malformed head", scorer.calls)
	}
	if preds, _ := store.ListPredictions(ctx, 10); len(preds) != 0 {
		t.Fatal("drain scored past the malformed head")
	}
}
