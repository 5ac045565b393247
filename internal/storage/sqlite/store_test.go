package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bayeshealth/diagnosis-api/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_SeedsCatalog(t *testing.T) {
	s := newTestStore(t)

	diseases, err := s.ListDiseases(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(diseases) != len(seedDiseases) {
		t.Fatalf("catalog size = %d, want %d", len(diseases), len(seedDiseases))
	}
}

func TestNew_SeedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopening an existing database must not duplicate the catalog.
	s, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	diseases, err := s.ListDiseases(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(diseases) != len(seedDiseases) {
		t.Errorf("catalog size after reopen = %d, want %d", len(diseases), len(seedDiseases))
	}
}

func TestDisease_Lookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Disease(ctx, "covid19")
	if err != nil {
		t.Fatal(err)
	}
	if d.Prevalence != 0.05 || d.Sensitivity != 0.95 || d.FalsePositive != 0.02 {
		t.Errorf("covid19 stats = %+v", d)
	}
	if len(d.Symptoms) == 0 {
		t.Error("symptoms not decoded")
	}
}

func TestDisease_CaseInsensitiveAndTrimmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"COVID19", "Covid19", "  covid19  "} {
		d, err := s.Disease(ctx, name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if d.Name != "covid19" {
			t.Errorf("%q: resolved name = %q", name, d.Name)
		}
	}
}

func TestDisease_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Disease(context.Background(), "unicorn_flu")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveAndRecentPredictions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		p := &storage.Prediction{
			ID:         string(rune('a' + i)),
			RequestID:  "req-1",
			Disease:    "influenza",
			Prior:      0.1,
			Posterior:  0.5,
			TestResult: "positive",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SavePrediction(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentPredictions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("predictions = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("order = %s, %s, want c, b", got[0].ID, got[1].ID)
	}
	if got[0].Disease != "influenza" || got[0].Posterior != 0.5 {
		t.Errorf("record = %+v", got[0])
	}
}

func TestSavePrediction_DefaultsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &storage.Prediction{ID: "x", RequestID: "req-2", Disease: "malaria", TestResult: "positive"}
	if err := s.SavePrediction(ctx, p); err != nil {
		t.Fatal(err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}

	got, err := s.RecentPredictions(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Errorf("stored CreatedAt = %v", got)
	}
}

func TestRecentPredictions_EmptyAndDefaultLimit(t *testing.T) {
	s := newTestStore(t)

	got, err := s.RecentPredictions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("predictions = %d, want 0", len(got))
	}
}
