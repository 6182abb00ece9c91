package health

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(_ context.Context) (string, error) {
		return "", nil
	})
	r.Register("model", func(_ context.Context) (string, error) {
		return "loaded", nil
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].Detail != "loaded" {
		t.Fatalf("expected detail to pass through, got %q", statuses[1].Detail)
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(_ context.Context) (string, error) {
		return "", nil
	})
	r.Register("model", func(_ context.Context) (string, error) {
		return "", errors.New("artifact not loaded")
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with failing probe should report unhealthy")
	}
	if statuses[1].Healthy {
		t.Fatal("failing probe should be marked unhealthy")
	}
	if statuses[1].Detail != "artifact not loaded" {
		t.Fatalf("expected error text as detail, got %q", statuses[1].Detail)
	}
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"database", "model", "enrichment"} {
		r.Register(name, func(_ context.Context) (string, error) { return "", nil })
	}

	_, statuses := r.CheckAll(context.Background())
	want := []string{"database", "model", "enrichment"}
	for i, name := range want {
		if statuses[i].Name != name {
			t.Fatalf("status %d: got %q, want %q", i, statuses[i].Name, name)
		}
	}
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(_ context.Context) (string, error) { return "v1", nil })
	r.Register("model", func(_ context.Context) (string, error) { return "", nil })
	r.Register("database", func(_ context.Context) (string, error) { return "v2", nil })

	_, statuses := r.CheckAll(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses after replace, got %d", len(statuses))
	}
	if statuses[0].Name != "database" || statuses[0].Detail != "v2" {
		t.Fatalf("replacement not applied in place: %+v", statuses[0])
	}
}
