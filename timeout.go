package microapi

import (
	"context"
	"net/http"
	"time"
)

// Timeout returns middleware that sets a deadline on the request context.
// Gates and handler wrappers answer 503 once the deadline has passed.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
