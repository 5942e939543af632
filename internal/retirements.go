package internal

import (
	"context"
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

const retirementColumns = `id, device_id, reason, status, retired_at, retired_by, notes, created_at, updated_at`

func scanRetirement(row interface{ Scan(dest ...any) error }, rt *models.Retirement, extra ...any) error {
	dest := []any{&rt.ID, &rt.DeviceID, &rt.Reason, &rt.Status, &rt.RetiredAt, &rt.RetiredBy, &rt.Notes, &rt.CreatedAt, &rt.UpdatedAt}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// getRetirementForUpdate locks the retirement row for the rest of the
// transaction
func getRetirementForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Retirement, error) {
	var rt models.Retirement
	err := scanRetirement(tx.QueryRowContext(ctx, `
		SELECT `+retirementColumns+`
		FROM retirements WHERE id = $1
		FOR UPDATE`, id), &rt)
	if err == sql.ErrNoRows {
		return nil, errNotFound("retirement not found")
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// retireDevice handles removing a device from the available pool. The device
// must be available: an assigned device has to be returned first, and a
// device can only carry one live retirement.
func (s *Server) retireDevice(w http.ResponseWriter, r *http.Request) {
	var req models.RetireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}

	var fields []schema.FieldError
	if req.DeviceID == 0 {
		fields = append(fields, fieldErr("device_id", "required"))
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		fields = append(fields, fieldErr("reason", "required"))
	} else if len(req.Reason) > models.MaxRetirementReasonLen {
		fields = append(fields, fieldErr("reason", fmt.Sprintf("must be at most %d characters", models.MaxRetirementReasonLen)))
	}
	if req.Status == "" {
		req.Status = models.RetirementRetired
	}
	if !models.IsValidRetirementStatus(req.Status) {
		fields = append(fields, fieldErr("status", "must be retired or disposed"))
	}
	if len(fields) > 0 {
		sendValidationErrors(w, fields)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Retirement
	err := s.inTx(r.Context(), func(tx *sql.Tx) error {
		d, err := getDeviceForUpdate(r.Context(), tx, req.DeviceID)
		if err != nil {
			return err
		}
		if !d.Available {
			var hasActive bool
			if err := tx.QueryRowContext(r.Context(),
				`SELECT EXISTS (SELECT 1 FROM assignments WHERE device_id = $1 AND active)`, req.DeviceID).Scan(&hasActive); err != nil {
				return err
			}
			if hasActive {
				return errConflict("device has an active assignment; return it first")
			}
			return errConflict("device is already retired")
		}

		err = scanRetirement(tx.QueryRowContext(r.Context(), `
			INSERT INTO retirements (device_id, reason, status, retired_at, retired_by, notes)
			VALUES ($1, $2, $3, now(), $4, $5)
			RETURNING `+retirementColumns, req.DeviceID, req.Reason, req.Status, actorID, req.Notes), &out)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("device is already retired")
			}
			return err
		}

		if _, err := tx.ExecContext(r.Context(),
			`UPDATE devices SET available = false, updated_at = now() WHERE id = $1`, req.DeviceID); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionRetire, models.EntityDevice, req.DeviceID,
			fmt.Sprintf("retired device %s: %s", d.SerialNumber, req.Reason), d.Snapshot(), out.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.RecordOp("retire")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// updateRetirement handles status/notes changes on a retirement record.
// retired may move to disposed; disposed is terminal and never moves back.
func (s *Server) updateRetirement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid retirement id")
		return
	}

	var req models.UpdateRetirementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	if req.Status == nil && req.Notes == nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "no fields to update")
		return
	}
	if req.Status != nil && !models.IsValidRetirementStatus(*req.Status) {
		sendValidationErrors(w, []schema.FieldError{fieldErr("status", "must be retired or disposed")})
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Retirement
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		rt, err := getRetirementForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if req.Status != nil && rt.Status == models.RetirementDisposed && *req.Status != models.RetirementDisposed {
			return errConflict("disposed is terminal")
		}
		prev := rt.Snapshot()

		status := rt.Status
		if req.Status != nil {
			status = *req.Status
		}
		notes := rt.Notes
		if req.Notes != nil {
			notes = req.Notes
		}

		err = scanRetirement(tx.QueryRowContext(r.Context(), `
			UPDATE retirements SET status = $1, notes = $2, updated_at = now()
			WHERE id = $3
			RETURNING `+retirementColumns, status, notes, id), &out)
		if err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionUpdate, models.EntityRetirement, out.ID,
			fmt.Sprintf("updated retirement for device %d", out.DeviceID), prev, out.Snapshot())
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

// restoreRetirement handles putting a retired device back in the available
// pool. A disposed device cannot be restored. The previous record survives
// in the audit snapshot.
func (s *Server) restoreRetirement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid retirement id")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var restored models.Device
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		rt, err := getRetirementForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if rt.Status == models.RetirementDisposed {
			return errConflict("disposed is terminal; device cannot be restored")
		}

		d, err := getDeviceForUpdate(r.Context(), tx, rt.DeviceID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(r.Context(), `DELETE FROM retirements WHERE id = $1`, id); err != nil {
			return err
		}

		err = scanDevice(tx.QueryRowContext(r.Context(), `
			UPDATE devices SET available = true, updated_at = now()
			WHERE id = $1
			RETURNING `+deviceColumns, rt.DeviceID), &restored)
		if err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionRestore, models.EntityDevice, d.ID,
			fmt.Sprintf("restored device %s", d.SerialNumber), rt.Snapshot(), restored.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.RecordOp("restore")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(restored); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// listRetirements handles retirement listing
func (s *Server) listRetirements(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if deviceIDStr := strings.TrimSpace(r.URL.Query().Get("device_id")); deviceIDStr != "" {
		if deviceID, err := strconv.ParseInt(deviceIDStr, 10, 64); err == nil {
			clauses = append(clauses, fmt.Sprintf("device_id = $%d", arg))
			args = append(args, deviceID)
			arg++
		}
	}
	if params.status != "" {
		if !models.IsValidRetirementStatus(params.status) {
			sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be retired or disposed")
			return
		}
		clauses = append(clauses, fmt.Sprintf("status = $%d", arg))
		args = append(args, params.status)
		arg++
	}
	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("reason ILIKE $%d", arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT `+retirementColumns+`,
		       COUNT(*) OVER() as total_count
		FROM retirements%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "id",
		"retired_at": "retired_at",
		"status":     "status",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	retirements := []interface{}{}
	var totalCount int
	for rows.Next() {
		var rt models.Retirement
		if err := scanRetirement(rows, &rt, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		retirements = append(retirements, rt)
	}

	sendListResponse(w, retirements, totalCount, params)
}
