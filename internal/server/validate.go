package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bayeshealth/diagnosis-api/internal/apperr"
	"github.com/bayeshealth/diagnosis-api/internal/validation"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 20

// payloadKey carries the validated, sanitized payload to the handler.
type payloadKey struct{}

// ValidateMiddleware parses the JSON body, validates it against the
// endpoint schema and stores the sanitized payload in the context. A
// security match emits a warning security record before the failure is
// converted.
func (s *Server) ValidateMiddleware(schema validation.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload, err := decodeBody(w, r)
			if err != nil {
				s.RespondError(w, r, err)
				return
			}

			cleaned, err := s.validator.Validate(payload, schema)
			if err != nil {
				var appErr *apperr.Error
				if errors.As(err, &appErr) && appErr.Kind == apperr.KindSecurity {
					s.logger.LogSecurityEvent(GetRequestID(r.Context()),
						"input_validation",
						appErr.Message,
						slog.String("field", appErr.Field),
						slog.String("endpoint", r.URL.Path),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				s.RespondError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), payloadKey{}, cleaned)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Malformed("Request body could not be read")
	}
	if len(body) == 0 {
		return nil, apperr.Malformed("Request body is empty")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Malformed("Request body must be valid JSON")
	}
	return payload, nil
}

// Payload returns the validated payload stashed by ValidateMiddleware.
func Payload(ctx context.Context) map[string]any {
	if payload, ok := ctx.Value(payloadKey{}).(map[string]any); ok {
		return payload
	}
	return nil
}
