package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// Recover converts handler panics into a 500 envelope instead of killing
// the connection, logging the panic value with its stack trace.
func Recover(log *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithFields(map[string]interface{}{
						"panic":  rec,
						"method": r.Method,
						"url":    r.URL.Path,
						"stack":  string(debug.Stack()),
					}).Error("panic recovered in HTTP handler")
					httputil.WriteInternalError(w, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
