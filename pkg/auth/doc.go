// Package auth provides identity verification and the verified-token cache.
//
// # Overview
//
// Authentication is delegated to an external OAuth2/OIDC identity
// provider; this package owns what happens after a bearer token arrives:
// turning it into a verified Identity, caching that result, and exposing
// the role model the rest of the service authorizes against.
//
// # Key Components
//
// Identity: the per-request caller, built from token claims and (in
// production) the provider's userinfo response. Never persisted.
//
//	if identity.HasRole(auth.RoleVendor) { ... }
//	if identity.IsAdmin() { ... }
//
// Verifier: strategy interface chosen once at startup.
//
//	// production: proves the token against the provider
//	verifier, err := auth.NewRemoteVerifier(ctx, issuerURL, 5*time.Second)
//
//	// development: decodes claims without signature verification
//	verifier := auth.NewLocalVerifier()
//
// TokenCache: process-local TTL cache keyed by raw token. Expired
// entries are dropped lazily on read; inserts past the high-water mark
// trigger a full eviction sweep.
//
//	cache := auth.NewTokenCache(5*time.Minute, 1000)
//	if identity, ok := cache.Get(token); ok { ... }
//
// # Error Mapping
//
// Verification failures map onto the API error taxonomy: provider 401
// and 403 surface as 401 (invalid token), provider outages and
// misconfiguration as 500, and anything unrecognized fails closed as 401.
//
// # Related Packages
//
//   - pkg/middleware: attaches verified identities to requests
//   - pkg/idp: the identity provider admin and grant client
package auth
