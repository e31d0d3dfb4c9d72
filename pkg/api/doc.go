// Package api is the HTTP surface of the platform: authentication and
// account routes, the public vendor catalog, vendor self-service, and the
// admin console endpoints. Handlers return errors into one central wrapper
// that logs request context and renders the uniform response envelope.
package api
