package microapi

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Middleware wraps the router's http.Handler. It forms the global
// middleware index that runs before any compiled chain.
type Middleware func(next http.Handler) http.Handler

// Recovery returns middleware that recovers from panics outside the
// compiled chains and responds with 500. A nil logger uses slog.Default().
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
