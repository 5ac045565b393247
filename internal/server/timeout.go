package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware attaches a deadline to the request context.
// Cancellation is cooperative: storage queries and the recommendation
// client observe ctx.Done(), the middleware does not kill the handler.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
