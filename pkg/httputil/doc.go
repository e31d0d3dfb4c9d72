// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Envelope
//
// Every endpoint answers with the same envelope shape:
//
//	{"success": true, "data": {...}, "message": "...", "pagination": {...}}
//	{"success": false, "message": "...", "error": {...}}
//
// Success helpers:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteSuccessMessage(w, "Password changed successfully", nil)
//	httputil.WriteCreated(w, "Vendor request submitted", req)
//	httputil.WritePaginated(w, users, httputil.NewPagination(page, limit, total))
//
// Error helpers render either a bare status+message or an *AppError from
// the taxonomy in errors.go:
//
//	httputil.WriteUnauthorized(w, "Invalid or expired token")
//	httputil.WriteError(w, err) // honors AppError status codes
//
// # Request Parsing
//
//	var req LoginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
//	page, limit := httputil.ParsePageWindow(r)
//
// # Related Packages
//
//   - pkg/middleware: authentication, authorization and rate limiting
package httputil
