package middleware

import (
	"context"
	"net/http"
)

// CancelOn cancels the request context as soon as done is cancelled, even
// while the server is still draining connections.
func CancelOn(done context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithCancel(r.Context())
			defer cancel()
			stop := context.AfterFunc(done, cancel)
			defer stop()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
