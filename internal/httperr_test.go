package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var p errorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestWriteOpErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"conflict", errConflict("device is not available"), http.StatusConflict, "CONFLICT"},
		{"not found", errNotFound("device not found"), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped conflict", fmt.Errorf("op failed: %w", errConflict("taken")), http.StatusConflict, "CONFLICT"},
		{"validation", errValidation(fieldErr("ram", "required")), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeOpError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodePayload(t, rec).Code)
		})
	}
}

func TestWriteOpErrorValidationCarriesFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOpError(rec, errValidation(
		fieldErr("storage", "malformed"),
		fieldErr("ram", "required"),
	))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodePayload(t, rec)
	require.Len(t, p.Fields, 2)
	assert.Equal(t, "storage", p.Fields[0].Field)
	assert.Equal(t, "ram", p.Fields[1].Field)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New(`duplicate key value violates unique constraint "devices_serial_number_key"`)))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
	assert.False(t, isTransient(errors.New("syntax error at or near")))
	assert.False(t, isTransient(nil))
}

func TestIsTransientRetryableSQLStates(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

	assert.True(t, isTransient(serialization))
	assert.True(t, isTransient(deadlock))
	assert.True(t, isTransient(fmt.Errorf("failed to assign device: %w", deadlock)))
	assert.False(t, isTransient(unique))
}
