// Package handlers implements the API endpoints. Every handler runs
// behind the protection pipeline: payloads arrive already rate-limited,
// validated and sanitized; failures are returned as errors for the
// boundary to convert.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bayeshealth/diagnosis-api/internal/apperr"
	"github.com/bayeshealth/diagnosis-api/internal/bayes"
	"github.com/bayeshealth/diagnosis-api/internal/logging"
	"github.com/bayeshealth/diagnosis-api/internal/ratelimit"
	"github.com/bayeshealth/diagnosis-api/internal/recommend"
	"github.com/bayeshealth/diagnosis-api/internal/server"
	"github.com/bayeshealth/diagnosis-api/internal/storage"
	"github.com/bayeshealth/diagnosis-api/internal/validation"
)

// Recommender is the narrow interface to the recommendation service.
type Recommender interface {
	Generate(ctx context.Context, req *recommend.Request) (*recommend.Response, error)
}

// Handlers holds the collaborators shared by all endpoints.
type Handlers struct {
	store       storage.Store
	recommender Recommender
	logger      *logging.Logger
	limiter     *ratelimit.Limiter
	started     time.Time
}

// New creates the handler set.
func New(store storage.Store, recommender Recommender, logger *logging.Logger, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		store:       store,
		recommender: recommender,
		logger:      logger,
		limiter:     limiter,
		started:     time.Now(),
	}
}

// Register binds every endpoint to its rate-limit class and schema.
func Register(s *server.Server, h *Handlers) {
	s.HandleJSON(http.MethodPost, "/api/disease", ratelimit.ClassDefault, validation.Schema{
		Required: []string{"pD", "sensitivity", "falsePositive"},
		Optional: []string{"testResult", "disease"},
	}, h.Disease)

	s.HandleJSON(http.MethodPost, "/api/preset", ratelimit.ClassDefault, validation.Schema{
		Required: []string{"disease"},
		Optional: []string{"testResult"},
	}, h.Preset)

	s.HandleJSON(http.MethodPost, "/api/predict", ratelimit.ClassPrediction, validation.Schema{
		Required: []string{"disease", "symptoms"},
		Optional: []string{"age", "height_cm", "weight_kg"},
	}, h.Predict)

	s.HandleJSON(http.MethodPost, "/api/analyze", ratelimit.ClassMLAnalysis, validation.Schema{
		Required: []string{"symptoms"},
	}, h.Analyze)

	s.HandleJSON(http.MethodPost, "/api/recommendations", ratelimit.ClassReport, validation.Schema{
		Required: []string{"prior_probability", "posterior_probability"},
		Optional: []string{"disease_name", "test_result", "language"},
	}, h.Recommendations)

	s.Handle(http.MethodGet, "/api/diseases", ratelimit.ClassDefault, h.Diseases)
	s.Handle(http.MethodGet, "/api/health", ratelimit.ClassDefault, h.Health)
	s.HandleAdmin(http.MethodGet, "/api/history", ratelimit.ClassDefault, h.History)
	s.HandleAdmin(http.MethodGet, "/api/stats", ratelimit.ClassDefault, h.Stats)
}

// Disease computes the posterior for caller-supplied test characteristics.
func (h *Handlers) Disease(w http.ResponseWriter, r *http.Request) error {
	payload := server.Payload(r.Context())
	start := time.Now()

	prior, err := validation.FloatField(payload, "pD")
	if err != nil {
		return err
	}
	sensitivity, err := validation.FloatField(payload, "sensitivity")
	if err != nil {
		return err
	}
	falsePositive, err := validation.FloatField(payload, "falsePositive")
	if err != nil {
		return err
	}

	testResult := bayes.TestPositive
	if v, ok := validation.StringField(payload, "testResult"); ok && v != "" {
		testResult = strings.ToLower(v)
	}

	posterior, err := bayes.PosteriorForTest(prior, sensitivity, falsePositive, testResult)
	if err != nil {
		return apperr.Validation(err.Error())
	}

	disease := "custom"
	if v, ok := validation.StringField(payload, "disease"); ok && v != "" {
		disease = v
	}
	h.recordPrediction(r, disease, prior, posterior, testResult, time.Since(start))

	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"p_d_given_result": round4(posterior),
		"prior":            prior,
		"test_result":      testResult,
	})
}

// Preset computes the posterior for a catalog disease's standard test.
func (h *Handlers) Preset(w http.ResponseWriter, r *http.Request) error {
	payload := server.Payload(r.Context())
	start := time.Now()

	name, _ := validation.StringField(payload, "disease")
	d, err := h.store.Disease(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("Disease", name)
		}
		return err
	}

	testResult := bayes.TestPositive
	if v, ok := validation.StringField(payload, "testResult"); ok && v != "" {
		testResult = strings.ToLower(v)
	}

	posterior, err := bayes.PosteriorForTest(d.Prevalence, d.Sensitivity, d.FalsePositive, testResult)
	if err != nil {
		return apperr.Validation(err.Error())
	}

	h.recordPrediction(r, d.Name, d.Prevalence, posterior, testResult, time.Since(start))

	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"disease":          d.Name,
		"prior":            d.Prevalence,
		"sensitivity":      d.Sensitivity,
		"falsePositive":    d.FalsePositive,
		"p_d_given_result": round4(posterior),
		"test_result":      testResult,
	})
}

// Predict estimates the probability of one disease from reported symptoms.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) error {
	payload := server.Payload(r.Context())
	start := time.Now()

	name, _ := validation.StringField(payload, "disease")
	symptoms, err := validation.StringsField(payload, "symptoms")
	if err != nil {
		return err
	}

	d, err := h.store.Disease(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("Disease", name)
		}
		return err
	}

	matched := matchSymptoms(symptoms, d.Symptoms)
	posterior, err := bayes.PosteriorForSymptoms(d.Prevalence, d.Sensitivity, d.FalsePositive, matched, len(d.Symptoms))
	if err != nil {
		return apperr.Prediction("Unable to compute prediction").WithCause(err)
	}

	h.recordPrediction(r, d.Name, d.Prevalence, posterior, "symptoms", time.Since(start))

	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"disease":          d.Name,
		"probability":      round4(posterior),
		"prior":            d.Prevalence,
		"matched_symptoms": matched,
		"known_symptoms":   len(d.Symptoms),
	})
}

// analyzeResult is one ranked entry in the Analyze response.
type analyzeResult struct {
	Disease     string  `json:"disease"`
	Probability float64 `json:"probability"`
	Matched     int     `json:"matched_symptoms"`
	Known       int     `json:"known_symptoms"`
}

// Analyze ranks every catalog disease against the reported symptoms.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) error {
	payload := server.Payload(r.Context())
	start := time.Now()

	symptoms, err := validation.StringsField(payload, "symptoms")
	if err != nil {
		return err
	}

	diseases, err := h.store.ListDiseases(r.Context())
	if err != nil {
		return err
	}

	results := make([]analyzeResult, 0, len(diseases))
	for _, d := range diseases {
		if len(d.Symptoms) == 0 {
			continue
		}
		matched := matchSymptoms(symptoms, d.Symptoms)
		posterior, err := bayes.PosteriorForSymptoms(d.Prevalence, d.Sensitivity, d.FalsePositive, matched, len(d.Symptoms))
		if err != nil {
			continue
		}
		results = append(results, analyzeResult{
			Disease:     d.Name,
			Probability: round4(posterior),
			Matched:     matched,
			Known:       len(d.Symptoms),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Probability > results[j].Probability
	})

	if len(results) > 0 {
		h.recordPrediction(r, results[0].Disease, 0, results[0].Probability, "symptoms", time.Since(start))
	}

	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"results":       results,
		"symptom_count": len(symptoms),
	})
}

// Recommendations asks the external service for next-step text.
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) error {
	payload := server.Payload(r.Context())

	prior, err := validation.FloatField(payload, "prior_probability")
	if err != nil {
		return err
	}
	posterior, err := validation.FloatField(payload, "posterior_probability")
	if err != nil {
		return err
	}
	if prior < 0 || prior > 1 {
		return apperr.Validation("prior_probability must be between 0 and 1").WithField("prior_probability")
	}
	if posterior < 0 || posterior > 1 {
		return apperr.Validation("posterior_probability must be between 0 and 1").WithField("posterior_probability")
	}

	req := &recommend.Request{
		Prior:      prior,
		Posterior:  posterior,
		TestResult: bayes.TestPositive,
		Language:   "english",
	}
	if v, ok := validation.StringField(payload, "disease_name"); ok {
		req.DiseaseName = v
	}
	if v, ok := validation.StringField(payload, "test_result"); ok && v != "" {
		req.TestResult = strings.ToLower(v)
	}
	if v, ok := validation.StringField(payload, "language"); ok && v != "" {
		req.Language = strings.ToLower(v)
	}

	resp, err := h.recommender.Generate(r.Context(), req)
	if err != nil {
		return apperr.Prediction("Unable to generate recommendations. Please try again later.").WithCause(err)
	}

	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"recommendations": resp.Recommendations,
	})
}

// Diseases lists the catalog.
func (h *Handlers) Diseases(w http.ResponseWriter, r *http.Request) error {
	diseases, err := h.store.ListDiseases(r.Context())
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"diseases": diseases,
		"count":    len(diseases),
	})
}

// History returns recent predictions, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) error {
	predictions, err := h.store.RecentPredictions(r.Context(), 50)
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"predictions": predictions,
		"count":       len(predictions),
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) error {
	return server.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// Stats exposes limiter counters for diagnostics.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) error {
	return server.WriteJSON(w, http.StatusOK, h.limiter.Stats())
}

// recordPrediction persists and logs a completed computation. Persistence
// failures are logged and swallowed: the computed result is still good.
func (h *Handlers) recordPrediction(r *http.Request, disease string, prior, posterior float64, testResult string, duration time.Duration) {
	requestID := server.GetRequestID(r.Context())

	p := &storage.Prediction{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		Disease:    disease,
		Prior:      prior,
		Posterior:  posterior,
		TestResult: testResult,
	}
	if err := h.store.SavePrediction(r.Context(), p); err != nil {
		h.logger.Warn("failed to persist prediction",
			slog.String("request_id", requestID),
			slog.String("disease", disease),
			slog.String("error", err.Error()),
		)
	}

	h.logger.LogPrediction(requestID, disease, round4(posterior), duration,
		slog.String("test_result", testResult))
	server.AddLogField(r.Context(), "disease", disease)
}

// matchSymptoms counts how many known symptoms appear in the reported
// list. Reported symptoms are normalized to the catalog's snake_case.
func matchSymptoms(reported, known []string) int {
	set := make(map[string]bool, len(reported))
	for _, s := range reported {
		set[normalizeSymptom(s)] = true
	}
	matched := 0
	for _, s := range known {
		if set[normalizeSymptom(s)] {
			matched++
		}
	}
	return matched
}

func normalizeSymptom(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
