package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/contextkeys"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// Authenticator verifies Bearer tokens and attaches the resulting
// identity to the request context. Verified tokens are cached; a cache
// hit skips the provider round trip entirely.
type Authenticator struct {
	verifier auth.Verifier
	cache    *auth.TokenCache
	log      *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthenticator builds the middleware. cache may be nil to disable caching.
func NewAuthenticator(verifier auth.Verifier, cache *auth.TokenCache, log *observability.Logger) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		cache:    cache,
		log:      log,
	}
}

// WithMetrics enables verification counters and latency tracking.
func (a *Authenticator) WithMetrics(m *observability.Metrics) *Authenticator {
	a.metrics = m
	return a
}

// Handler wraps next with token authentication.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.WriteUnauthorized(w, "Authorization header required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.WriteUnauthorized(w, "Invalid authorization header format")
			return
		}
		token := parts[1]

		identity, ok := a.lookupCached(token)
		if !ok {
			var err error
			identity, err = a.verify(r, token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if a.cache != nil {
				a.cache.Put(token, *identity)
			}
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.SubjectID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) lookupCached(token string) (*auth.Identity, bool) {
	if a.cache == nil {
		return nil, false
	}
	return a.cache.Get(token)
}

func (a *Authenticator) verify(r *http.Request, token string) (*auth.Identity, error) {
	start := time.Now()
	identity, err := a.verifier.Verify(r.Context(), token)
	if a.metrics != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		a.metrics.TokenVerificationsTotal.WithLabelValues(result).Inc()
		a.metrics.TokenVerificationDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		a.log.WithError(err).WithField("ip", ClientIP(r)).Debug("token verification failed")
		return nil, err
	}
	return identity, nil
}

// GetIdentity returns the verified identity from the request context,
// or nil when the request did not pass the Authenticator.
func GetIdentity(r *http.Request) *auth.Identity {
	identity, _ := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}

// RequireRole rejects requests whose identity lacks the exact role.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return RequireAnyRole(role)
}

// RequireAnyRole rejects requests whose identity holds none of the roles.
func RequireAnyRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}
			if !identity.HasAnyRole(roles...) {
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin allows admins and superadmins only.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireAnyRole(auth.RoleAdmin, auth.RoleSuperAdmin)
}

// RequireVendor allows vendors only.
func RequireVendor() func(http.Handler) http.Handler {
	return RequireAnyRole(auth.RoleVendor)
}

// RequireSuperAdmin allows superadmins only.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return RequireAnyRole(auth.RoleSuperAdmin)
}

// maxOwnerBodyBytes caps how much of a request body the ownership guard
// will read looking for the owner id.
const maxOwnerBodyBytes = 1 << 20

// RequireOwnershipOrAdmin lets a request through when the authenticated
// subject matches the user id named by the request, or when the caller
// is an admin. The id is taken from the path variable, then a top-level
// JSON body field, then the query parameter of the same name.
func RequireOwnershipOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}
			if identity.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}

			target, err := httputil.ParsePathString(r, param)
			if err != nil {
				target = bodyOwnerField(r, param)
			}
			if target == "" {
				target = r.URL.Query().Get(param)
			}
			if target == "" || target != identity.SubjectID {
				httputil.WriteForbidden(w, "You can only access your own resources")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyOwnerField peeks at a top-level string field in a JSON body and
// restores the body so the handler can still decode it.
func bodyOwnerField(r *http.Request, param string) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxOwnerBodyBytes))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}
	if err != nil {
		return ""
	}
	var fields map[string]interface{}
	if json.Unmarshal(buf, &fields) != nil {
		return ""
	}
	if v, ok := fields[param].(string); ok {
		return v
	}
	return ""
}
