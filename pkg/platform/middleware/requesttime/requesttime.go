// Package requesttime captures one "now" per request so that every timestamp
// written while serving it agrees.
package requesttime

import (
	"net/http"
	"time"

	"kyb/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
