package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"device-custody-api/internal/auth"
	"device-custody-api/internal/models"
	"device-custody-api/internal/schema"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
)

// requiredFieldsForType looks up the hardware spec fields a type requires.
// sql.ErrNoRows maps to a NotFound domain error.
func requiredFieldsForType(ctx context.Context, q rowQuerier, typeID int64) ([]string, error) {
	var fields pq.StringArray
	err := q.QueryRowContext(ctx, `SELECT required_fields FROM device_types WHERE id = $1`, typeID).Scan(&fields)
	if err == sql.ErrNoRows {
		return nil, errNotFound("device type not found")
	}
	if err != nil {
		return nil, err
	}
	return []string(fields), nil
}

// createDeviceType handles creating a device type with its required
// specification-field set. The set is fixed at creation.
func (s *Server) createDeviceType(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDeviceTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}

	var fields []schema.FieldError
	if req.Name == "" {
		fields = append(fields, fieldErr("name", "required"))
	}
	seen := map[string]bool{}
	for _, f := range req.RequiredFields {
		if !models.IsSpecField(f) {
			fields = append(fields, fieldErr("required_fields", "unknown specification field: "+f))
		} else if seen[f] {
			fields = append(fields, fieldErr("required_fields", "duplicate field: "+f))
		}
		seen[f] = true
	}
	if len(fields) > 0 {
		sendValidationErrors(w, fields)
		return
	}
	if req.RequiredFields == nil {
		req.RequiredFields = []string{}
	}

	actorID := auth.UserIDFromContext(r.Context())

	var dt models.DeviceType
	err := s.inTx(r.Context(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(r.Context(), `
			INSERT INTO device_types (name, description, required_fields)
			VALUES ($1, $2, $3)
			RETURNING id, name, description, required_fields, created_at, updated_at
		`, req.Name, req.Description, pq.Array(req.RequiredFields)).
			Scan(&dt.ID, &dt.Name, &dt.Description, (*pq.StringArray)(&dt.RequiredFields), &dt.CreatedAt, &dt.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("device type with this name already exists")
			}
			return err
		}
		return insertAudit(r.Context(), tx, actorID, models.ActionCreate, models.EntityDeviceType, dt.ID,
			"created device type "+dt.Name, nil, models.JSONB{"id": dt.ID, "name": dt.Name, "required_fields": dt.RequiredFields})
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// listDeviceTypes handles device type listing
func (s *Server) listDeviceTypes(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	sqlStr := `
		SELECT id, name, description, required_fields, created_at, updated_at,
		       COUNT(*) OVER() as total_count
		FROM device_types`
	args := []interface{}{}
	if params.q != "" {
		sqlStr += " WHERE name ILIKE $1"
		args = append(args, "%"+params.q+"%")
	}

	allowedSort := map[string]string{
		"id":         "id",
		"name":       "name",
		"created_at": "created_at",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	types := []interface{}{}
	var totalCount int
	for rows.Next() {
		var dt models.DeviceType
		if err := rows.Scan(&dt.ID, &dt.Name, &dt.Description, (*pq.StringArray)(&dt.RequiredFields), &dt.CreatedAt, &dt.UpdatedAt, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		types = append(types, dt)
	}

	sendListResponse(w, types, totalCount, params)
}

// getDeviceType handles getting a single device type by ID
func (s *Server) getDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid device type id")
		return
	}

	var dt models.DeviceType
	err = s.DB.QueryRowContext(r.Context(), `
		SELECT id, name, description, required_fields, created_at, updated_at
		FROM device_types WHERE id = $1`, id).
		Scan(&dt.ID, &dt.Name, &dt.Description, (*pq.StringArray)(&dt.RequiredFields), &dt.CreatedAt, &dt.UpdatedAt)
	if err == sql.ErrNoRows {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "device type not found")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
