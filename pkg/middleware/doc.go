// Package middleware provides the HTTP middleware chain: Bearer token
// authentication with caching, role and ownership guards, per-IP rate
// limiting (in-process or Redis-backed), and request id propagation.
package middleware
