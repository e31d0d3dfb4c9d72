// Package httputil provides HTTP handler utilities: the JSON response
// envelope used across the API, request parsing helpers, and the
// application error taxonomy.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Pagination describes the page window attached to list responses.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// Envelope is the uniform response body. Every endpoint answers with it,
// success or failure.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      interface{} `json:"error,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 success envelope with the given payload.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteSuccessMessage writes a 200 success envelope with a message and
// optional payload.
func WriteSuccessMessage(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteCreated writes a 201 success envelope.
func WriteCreated(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// WritePaginated writes a 200 success envelope with a pagination block.
func WritePaginated(w http.ResponseWriter, data interface{}, p Pagination) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: &p})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes an error envelope with a custom message.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// WriteError writes an error envelope for the given error. *AppError
// values carry their own status code; anything else is a 500 with a
// generic message so internal details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	if appErr, ok := AsAppError(err); ok {
		WriteJSON(w, appErr.StatusCode, Envelope{
			Success: false,
			Message: appErr.Message,
			Error:   appErr.Details,
		})
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}

// WriteValidationError writes a validation error envelope (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteTooManyRequests writes a rate limit error envelope (429) carrying
// the number of seconds until the window resets.
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfterSeconds int) {
	WriteJSON(w, http.StatusTooManyRequests, Envelope{
		Success: false,
		Message: message,
		Error:   map[string]interface{}{"retryAfter": retryAfterSeconds},
	})
}

// WriteInternalError writes an internal server error envelope (500)
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusInternalServerError, message)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}
