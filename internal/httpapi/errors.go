package httpapi

import (
	"encoding/json"
	"net/http"

	"llmedged/internal/lifecycle"
	"llmedged/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps lifecycle errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case lifecycle.IsValidation(err):
		return http.StatusUnprocessableEntity
	case lifecycle.IsModelNotFound(err):
		return http.StatusNotFound
	case lifecycle.IsUnsupportedOperation(err):
		return http.StatusBadRequest
	case lifecycle.IsLoadFailure(err):
		return http.StatusInternalServerError
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
