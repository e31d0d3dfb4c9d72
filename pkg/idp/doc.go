// Package idp is the client for the external identity provider. It
// covers the OAuth token endpoints (password and refresh grants,
// logout) and the admin REST API (user and realm-role management),
// with an internally cached admin token. In development mode without
// provider credentials, calls return simulated results.
package idp
