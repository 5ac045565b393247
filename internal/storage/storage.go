// Package storage defines the persistence interfaces for the disease
// catalog and prediction history.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Disease is one catalog entry with its test characteristics.
type Disease struct {
	Name          string   `json:"name"`
	Prevalence    float64  `json:"prevalence"`
	Sensitivity   float64  `json:"sensitivity"`
	FalsePositive float64  `json:"false_positive"`
	Symptoms      []string `json:"symptoms,omitempty"`
}

// Prediction is one stored probability computation.
type Prediction struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Disease    string    `json:"disease"`
	Prior      float64   `json:"prior"`
	Posterior  float64   `json:"posterior"`
	TestResult string    `json:"test_result"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the persistence surface consumed by the handlers.
type Store interface {
	// Disease returns the catalog entry by name, case-insensitively.
	Disease(ctx context.Context, name string) (*Disease, error)

	// ListDiseases returns the whole catalog.
	ListDiseases(ctx context.Context) ([]Disease, error)

	// SavePrediction persists one computed prediction.
	SavePrediction(ctx context.Context, p *Prediction) error

	// RecentPredictions returns up to limit predictions, newest first.
	RecentPredictions(ctx context.Context, limit int) ([]Prediction, error)

	// Close releases the underlying resources.
	Close() error
}
