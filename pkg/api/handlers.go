package api

import (
	"net/http"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/middleware"
)

// handlerFunc is the shape every route handler takes: return the error and
// let one place decide how it is logged and rendered.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts a handlerFunc into the central error path. Application
// errors render with their own status; anything else is logged with full
// request context and rendered as a generic 500, with detail only in
// development.
func (s *Server) handle(name string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		if appErr, ok := httputil.AsAppError(err); ok {
			if appErr.StatusCode >= http.StatusInternalServerError {
				s.log.WithError(err).WithFields(map[string]interface{}{
					"handler":   name,
					"method":    r.Method,
					"url":       r.URL.String(),
					"ip":        middleware.ClientIP(r),
					"userAgent": r.UserAgent(),
				}).Error("request failed")
			}
			httputil.WriteError(w, err)
			return
		}

		s.log.WithError(err).WithFields(map[string]interface{}{
			"handler":   name,
			"method":    r.Method,
			"url":       r.URL.String(),
			"ip":        middleware.ClientIP(r),
			"userAgent": r.UserAgent(),
		}).Error("unhandled error in request")

		if s.deps.DevMode {
			httputil.WriteInternalError(w, err.Error())
			return
		}
		httputil.WriteError(w, err)
	})
}

// identity returns the verified identity or an authentication error. Routes
// behind the authenticator always have one; this guards direct handler use.
func identity(r *http.Request) (*auth.Identity, error) {
	id := middleware.GetIdentity(r)
	if id == nil {
		return nil, httputil.NewAuthenticationError("Authentication required")
	}
	return id, nil
}
