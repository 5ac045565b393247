package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bayeshealth/diagnosis-api/internal/storage"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath, initializes the schema
// and seeds the disease catalog if it is empty.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.seedCatalog(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed disease catalog: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS diseases (
			name TEXT PRIMARY KEY,
			prevalence REAL NOT NULL,
			sensitivity REAL NOT NULL,
			false_positive REAL NOT NULL,
			symptoms TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			disease TEXT NOT NULL,
			prior REAL NOT NULL,
			posterior REAL NOT NULL,
			test_result TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at
			ON predictions(created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) seedCatalog() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM diseases`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range seedDiseases {
		symptoms, err := json.Marshal(d.Symptoms)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO diseases (name, prevalence, sensitivity, false_positive, symptoms)
			 VALUES (?, ?, ?, ?, ?)`,
			d.Name, d.Prevalence, d.Sensitivity, d.FalsePositive, string(symptoms),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Disease returns the catalog entry matching name case-insensitively.
func (s *Store) Disease(ctx context.Context, name string) (*storage.Disease, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, prevalence, sensitivity, false_positive, symptoms
		 FROM diseases WHERE LOWER(name) = LOWER(?)`,
		strings.TrimSpace(name),
	)

	var d storage.Disease
	var symptoms sql.NullString
	if err := row.Scan(&d.Name, &d.Prevalence, &d.Sensitivity, &d.FalsePositive, &symptoms); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query disease: %w", err)
	}

	if symptoms.Valid && symptoms.String != "" {
		if err := json.Unmarshal([]byte(symptoms.String), &d.Symptoms); err != nil {
			return nil, fmt.Errorf("decode symptoms: %w", err)
		}
	}
	return &d, nil
}

// ListDiseases returns the whole catalog ordered by name.
func (s *Store) ListDiseases(ctx context.Context) ([]storage.Disease, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, prevalence, sensitivity, false_positive, symptoms
		 FROM diseases ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query diseases: %w", err)
	}
	defer rows.Close()

	var out []storage.Disease
	for rows.Next() {
		var d storage.Disease
		var symptoms sql.NullString
		if err := rows.Scan(&d.Name, &d.Prevalence, &d.Sensitivity, &d.FalsePositive, &symptoms); err != nil {
			return nil, fmt.Errorf("scan disease: %w", err)
		}
		if symptoms.Valid && symptoms.String != "" {
			if err := json.Unmarshal([]byte(symptoms.String), &d.Symptoms); err != nil {
				return nil, fmt.Errorf("decode symptoms: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SavePrediction persists one prediction record.
func (s *Store) SavePrediction(ctx context.Context, p *storage.Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, request_id, disease, prior, posterior, test_result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RequestID, p.Disease, p.Prior, p.Posterior, p.TestResult, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]storage.Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, disease, prior, posterior, test_result, created_at
		 FROM predictions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []storage.Prediction
	for rows.Next() {
		var p storage.Prediction
		if err := rows.Scan(&p.ID, &p.RequestID, &p.Disease, &p.Prior, &p.Posterior, &p.TestResult, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
