package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"device-custody-api/internal/auth"
	"device-custody-api/internal/models"
	"device-custody-api/internal/schema"

	"github.com/go-chi/chi/v5"
)

const areaColumns = `id, name, description, created_at, updated_at`

func scanArea(row interface{ Scan(dest ...any) error }, a *models.Area, extra ...any) error {
	dest := []any{&a.ID, &a.Name, &a.Description, &a.CreatedAt, &a.UpdatedAt}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// createArea handles creating a new area
func (s *Server) createArea(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		sendValidationErrors(w, []schema.FieldError{fieldErr("name", "required")})
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var area models.Area
	err := s.inTx(r.Context(), func(tx *sql.Tx) error {
		err := scanArea(tx.QueryRowContext(r.Context(), `
			INSERT INTO areas (name, description)
			VALUES ($1, $2)
			RETURNING `+areaColumns, req.Name, nullIfEmpty(req.Description)), &area)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("area with this name already exists")
			}
			return err
		}
		return insertAudit(r.Context(), tx, actorID, models.ActionCreate, models.EntityArea, area.ID,
			"created area "+area.Name, nil, area.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(area); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// listAreas handles area listing
func (s *Server) listAreas(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT `+areaColumns+`,
		       COUNT(*) OVER() as total_count
		FROM areas%s`, whereClause)

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

	areas := []models.Area{}
	var totalCount int
	for rows.Next() {
		var a models.Area
		if err := scanArea(rows, &a, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		areas = append(areas, a)
	}

	sendListResponse(w, areas, totalCount, params)
}

// getArea handles the expanded area read: the area plus the devices in it
func (s *Server) getArea(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid area id")
		return
	}

	var area models.Area
	err = scanArea(s.DB.QueryRowContext(r.Context(), `
		SELECT `+areaColumns+`
		FROM areas WHERE id = $1`, id), &area)
	if err == sql.ErrNoRows {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "area not found")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE area_id = $1
		ORDER BY id`, area.ID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var d models.Device
		if err := scanDevice(rows, &d); err != nil {
			writeOpError(w, err)
			return
		}
		devices = append(devices, d)
	}

	out := models.AreaWithDevices{Area: area, Devices: devices}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// updateArea handles updating an area
func (s *Server) updateArea(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid area id")
		return
	}

	var req models.UpdateAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	if req.Name == nil && req.Description == nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "no fields to update")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		sendValidationErrors(w, []schema.FieldError{fieldErr("name", "must not be empty")})
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Area
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		var current models.Area
		err := scanArea(tx.QueryRowContext(r.Context(), `
			SELECT `+areaColumns+`
			FROM areas WHERE id = $1
			FOR UPDATE`, id), &current)
		if err == sql.ErrNoRows {
			return errNotFound("area not found")
		}
		if err != nil {
			return err
		}
		prev := current.Snapshot()

		name := current.Name
		if req.Name != nil {
			name = strings.TrimSpace(*req.Name)
		}
		description := current.Description
		if req.Description != nil {
			description = req.Description
		}

		err = scanArea(tx.QueryRowContext(r.Context(), `
			UPDATE areas SET name = $1, description = $2, updated_at = now()
			WHERE id = $3
			RETURNING `+areaColumns, name, description, id), &out)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("area with this name already exists")
			}
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionUpdate, models.EntityArea, out.ID,
			"updated area "+out.Name, prev, out.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// deleteArea handles deleting an area. Devices in the area are detached, not
// deleted.
func (s *Server) deleteArea(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid area id")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		var current models.Area
		err := scanArea(tx.QueryRowContext(r.Context(), `
			SELECT `+areaColumns+`
			FROM areas WHERE id = $1
			FOR UPDATE`, id), &current)
		if err == sql.ErrNoRows {
			return errNotFound("area not found")
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(r.Context(),
			`UPDATE devices SET area_id = NULL, updated_at = now() WHERE area_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(r.Context(), `DELETE FROM areas WHERE id = $1`, id); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionDelete, models.EntityArea, id,
			"deleted area "+current.Name, current.Snapshot(), nil)
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
