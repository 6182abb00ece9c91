package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwilder/fraudscore/internal/features"
)

const testArtifact = `{
	"numeric": {
		"amt":                 {"weight": 2.0, "mean": 100.0, "scale": 50.0},
		"merchant_fraud_rate": {"weight": 4.0, "mean": 0.0,   "scale": 0.1}
	},
	"categorical": {
		"category": {"shopping_net": 1.5, "grocery_pos": -0.5}
	},
	"intercept": -3.0,
	"threshold": 0.5
}`

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fraud_pipeline.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestLoadMissingArtifact(t *testing.T) {
	if _, err := Load("/nonexistent/fraud_pipeline.json"); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestLoadCorruptArtifact(t *testing.T) {
	path := writeArtifact(t, "not json at all")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for corrupt artifact")
	}
}

func TestLoadEmptyArtifact(t *testing.T) {
	path := writeArtifact(t, `{"intercept": 0.1}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for artifact without weights")
	}
}

func TestScoreBinaryLabels(t *testing.T) {
	scorer, err := Load(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()

	// Low amount, no merchant risk, benign category: z well below 0.
	legit := &features.Record{Amt: 20.0, Category: "grocery_pos"}
	label, err := scorer.Score(ctx, legit)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if label != LabelLegitimate {
		t.Errorf("benign record scored %d", label)
	}

	// Big amount spike plus risky merchant and category: z well above 0.
	fraud := &features.Record{Amt: 400.0, MerchantFraudRate: 0.08, Category: "shopping_net"}
	label, err = scorer.Score(ctx, fraud)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if label != LabelFraud {
		t.Errorf("risky record scored %d", label)
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer, err := Load(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := &features.Record{Amt: 150.0, Category: "shopping_net", MerchantFraudRate: 0.02}

	first, err := scorer.Score(context.Background(), rec)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := scorer.Score(context.Background(), rec)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if again != first {
			t.Fatal("score is not deterministic")
		}
	}
}

func TestScoreUnseenCategoricalValue(t *testing.T) {
	scorer, err := Load(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// An unseen category contributes no weight; must not error.
	rec := &features.Record{Amt: 100.0, Category: "never_seen"}
	if _, err := scorer.Score(context.Background(), rec); err != nil {
		t.Fatalf("score: %v", err)
	}
}

func TestUnavailableScorer(t *testing.T) {
	_, err := Unavailable{}.Score(context.Background(), &features.Record{})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestThresholdDefaulting(t *testing.T) {
	path := writeArtifact(t, `{
		"numeric": {"amt": {"weight": 1.0, "mean": 0, "scale": 1}},
		"intercept": 0,
		"threshold": 0
	}`)
	scorer, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if scorer.art.Threshold != 0.5 {
		t.Errorf("threshold = %f, want defaulted 0.5", scorer.art.Threshold)
	}
}
