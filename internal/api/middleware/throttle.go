package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Throttle applies a token-bucket limit to the wrapped handler. This guards
// the process against a runaway trigger collaborator; it is unrelated to the
// per-destination dispatch pacing, which the queue manager enforces itself.
func Throttle(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
