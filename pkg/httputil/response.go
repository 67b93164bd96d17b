// Package httputil provides HTTP handler utilities for the registry's JSON
// wire format and shared middleware.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the registry's error envelope. Code is a stable
// machine-readable identifier; Message is for humans.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the registry error envelope with the given status code
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusBadRequest, code, message)
}

// WriteUnauthorized writes an unauthorized error response (401)
func WriteUnauthorized(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusUnauthorized, code, message)
}

// WriteForbidden writes a forbidden error response (403)
func WriteForbidden(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusForbidden, code, message)
}

// WriteNotFound writes a not found error response (404)
func WriteNotFound(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusNotFound, code, message)
}

// WriteConflict writes a conflict error response (409)
func WriteConflict(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusConflict, code, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusInternalServerError, code, message)
}
