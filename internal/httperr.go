package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"device-custody-api/internal/schema"
)

// Domain error kinds. Handlers run their work inside a transaction and map
// whatever comes back through writeOpError, so a failed operation produces a
// structured payload and zero movement/audit rows.

type conflictError struct{ msg string }

func (e conflictError) Error() string { return e.msg }

func errConflict(msg string) error { return conflictError{msg: msg} }

type notFoundError struct{ msg string }

func (e notFoundError) Error() string { return e.msg }

func errNotFound(msg string) error { return notFoundError{msg: msg} }

type validationError struct {
	fields []schema.FieldError
}

func (e validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func errValidation(fields ...schema.FieldError) error {
	return validationError{fields: fields}
}

func fieldErr(field, message string) schema.FieldError {
	return schema.FieldError{Field: field, Message: message}
}

// errorPayload is the structured error body every mutating endpoint returns
// on failure
type errorPayload struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorPayload{Error: message, Code: code}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func sendValidationErrors(w http.ResponseWriter, fields []schema.FieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	payload := errorPayload{
		Error:  "validation failed",
		Code:   "VALIDATION_ERROR",
		Fields: fields,
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeOpError maps a domain or storage error onto the HTTP error taxonomy
func writeOpError(w http.ResponseWriter, err error) {
	var ve validationError
	if errors.As(err, &ve) {
		sendValidationErrors(w, ve.fields)
		return
	}
	var ce conflictError
	if errors.As(err, &ce) {
		sendError(w, http.StatusConflict, "CONFLICT", ce.msg)
		return
	}
	var ne notFoundError
	if errors.As(err, &ne) {
		sendError(w, http.StatusNotFound, "NOT_FOUND", ne.msg)
		return
	}
	if isTransient(err) {
		sendError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "storage temporarily unavailable")
		return
	}
	sendError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

// isUniqueViolation sniffs a unique-constraint failure out of a driver error
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
