package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bayeshealth/diagnosis-api/internal/apperr"
	"github.com/bayeshealth/diagnosis-api/internal/ratelimit"
)

// RateLimitMiddleware admits or rejects the request against the class
// bucket before any other work is done. Every response on a limited
// endpoint carries X-RateLimit-Limit and X-RateLimit-Remaining; denials
// additionally carry Retry-After and skip the remaining stages.
func (s *Server) RateLimitMiddleware(class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := ratelimit.ClientKey(clientIP(r), r.UserAgent())
			decision := s.limiter.Admit(clientKey, class)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				// A client hammering a closed bucket is flagged once per
				// threshold crossing; routine denials stay out of the
				// error log.
				if s.opts.DenialAlertThreshold > 0 && decision.Denials == s.opts.DenialAlertThreshold {
					s.logger.LogSecurityEvent(GetRequestID(r.Context()),
						"repeated_rate_limit_denial",
						"client repeatedly exceeding rate limit",
						slog.String("endpoint", r.URL.Path),
						slog.String("remote_addr", r.RemoteAddr),
						slog.String("class", string(class)),
						slog.Int("consecutive_denials", decision.Denials),
					)
				}
				s.RespondError(w, r, apperr.RateLimit(decision.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
