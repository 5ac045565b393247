package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/bayeshealth/diagnosis-api/internal/apperr"
	"github.com/bayeshealth/diagnosis-api/internal/storage"
)

// HandlerFunc is an HTTP handler that signals failure by returning an
// error instead of writing its own error response. The boundary converts
// the error into the uniform envelope.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// envelope is the client-visible error structure.
type envelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Wrap is the error boundary around a handler. Normal completion passes
// through untouched; any returned error or panic becomes exactly one
// envelope and exactly one log record.
func (s *Server) Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(r.Context())
				s.logger.LogError(requestID, string(apperr.KindInternal),
					fmt.Sprintf("panic: %v", rec),
					slog.String("endpoint", r.URL.Path),
					slog.String("method", r.Method),
					slog.String("stack", string(debug.Stack())),
				)
				AddLogField(r.Context(), "error", string(apperr.KindInternal))
				writeEnvelope(w, apperr.Internal("An unexpected error occurred. Please try again later."))
			}
		}()

		if err := h(w, r); err != nil {
			s.RespondError(w, r, err)
		}
	}
}

// RespondError converts a failure into the envelope and log record the
// taxonomy prescribes. Rate-limit denials are routine and are not logged
// as errors.
func (s *Server) RespondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, detail := classify(err)
	requestID := GetRequestID(r.Context())

	if appErr.Kind != apperr.KindRateLimit {
		s.logger.LogError(requestID, string(appErr.Kind), detail,
			slog.String("endpoint", r.URL.Path),
			slog.String("method", r.Method),
			slog.String("remote_addr", r.RemoteAddr),
		)
	}
	AddLogField(r.Context(), "error", string(appErr.Kind))

	writeEnvelope(w, appErr)
}

// classify maps an arbitrary error onto the taxonomy. Unknown errors
// become a generic internal error; the original detail is returned for
// logging and never reaches the client.
func classify(err error) (appErr *apperr.Error, detail string) {
	if errors.As(err, &appErr) {
		return appErr, appErr.Detail()
	}
	if errors.Is(err, storage.ErrNotFound) {
		e := apperr.NotFound("Resource", "")
		return e, err.Error()
	}
	return apperr.Internal("An internal server error occurred. Please try again later."), err.Error()
}

func writeEnvelope(w http.ResponseWriter, appErr *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	if appErr.Kind == apperr.KindRateLimit && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", appErr.RetryAfter))
	}
	w.WriteHeader(appErr.HTTPStatusCode())

	_ = json.NewEncoder(w).Encode(envelope{
		Error:     string(appErr.Kind),
		Message:   appErr.Message,
		Field:     appErr.Field,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteJSON writes a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
