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

	"github.com/go-chi/chi/v5"
)

const assignmentColumns = `id, device_id, user_id, assigned_at, returned_at, active, notes, created_at, updated_at`

func scanAssignment(row interface{ Scan(dest ...any) error }, a *models.Assignment, extra ...any) error {
	dest := []any{&a.ID, &a.DeviceID, &a.UserID, &a.AssignedAt, &a.ReturnedAt, &a.Active, &a.Notes, &a.CreatedAt, &a.UpdatedAt}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// getAssignmentForUpdate locks the assignment row for the rest of the
// transaction
func getAssignmentForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Assignment, error) {
	var a models.Assignment
	err := scanAssignment(tx.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments WHERE id = $1
		FOR UPDATE`, id), &a)
	if err == sql.ErrNoRows {
		return nil, errNotFound("assignment not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// checkHolder verifies the prospective holder exists and is active
func checkHolder(ctx context.Context, tx *sql.Tx, userID int64) error {
	var isActive bool
	err := tx.QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&isActive)
	if err == sql.ErrNoRows {
		return errNotFound("user not found")
	}
	if err != nil {
		return err
	}
	if !isActive {
		return errConflict("user is deactivated")
	}
	return nil
}

// assignDevice handles assigning an available device to a holder. The
// availability check and the writes run under the device's row lock, so two
// concurrent assigns on the same device yield exactly one success and one
// conflict.
func (s *Server) assignDevice(w http.ResponseWriter, r *http.Request) {
	var req models.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	if req.DeviceID == 0 || req.UserID == 0 {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "device_id and user_id are required")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Assignment
	err := s.inTx(r.Context(), func(tx *sql.Tx) error {
		d, err := getDeviceForUpdate(r.Context(), tx, req.DeviceID)
		if err != nil {
			return err
		}
		if !d.Available {
			return errConflict("device is not available")
		}
		if err := checkHolder(r.Context(), tx, req.UserID); err != nil {
			return err
		}

		err = scanAssignment(tx.QueryRowContext(r.Context(), `
			INSERT INTO assignments (device_id, user_id, assigned_at, active, notes)
			VALUES ($1, $2, now(), true, $3)
			RETURNING `+assignmentColumns, req.DeviceID, req.UserID, req.Notes), &out)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("device already has an active assignment")
			}
			return err
		}

		if _, err := tx.ExecContext(r.Context(),
			`UPDATE devices SET available = false, updated_at = now() WHERE id = $1`, req.DeviceID); err != nil {
			return err
		}

		if err := insertMovement(r.Context(), tx, models.Movement{
			DeviceID: req.DeviceID,
			UserID:   req.UserID,
			Kind:     models.MovementAssigned,
			Notes:    req.Notes,
		}); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionAssign, models.EntityAssignment, out.ID,
			fmt.Sprintf("assigned device %d to user %d", req.DeviceID, req.UserID), nil, out.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.RecordOp("assign")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// returnAssignment handles closing an active assignment and re-availing the
// device
func (s *Server) returnAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid assignment id")
		return
	}

	var req models.ReturnRequest
	if r.Body != nil {
		// Body is optional on return
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Assignment
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		a, err := getAssignmentForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if !a.Active {
			return errConflict("assignment is not active")
		}
		if _, err := getDeviceForUpdate(r.Context(), tx, a.DeviceID); err != nil {
			return err
		}
		prev := a.Snapshot()

		err = scanAssignment(tx.QueryRowContext(r.Context(), `
			UPDATE assignments SET returned_at = now(), active = false, updated_at = now()
			WHERE id = $1
			RETURNING `+assignmentColumns, id), &out)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(r.Context(),
			`UPDATE devices SET available = true, updated_at = now() WHERE id = $1`, a.DeviceID); err != nil {
			return err
		}

		if err := insertMovement(r.Context(), tx, models.Movement{
			DeviceID: a.DeviceID,
			UserID:   a.UserID,
			Kind:     models.MovementReturned,
			Notes:    req.Notes,
		}); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionReturn, models.EntityAssignment, out.ID,
			fmt.Sprintf("returned device %d from user %d", a.DeviceID, a.UserID), prev, out.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.RecordOp("return")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// transferAssignment handles moving custody to a new holder atomically: the
// current assignment closes and the new one opens in the same transaction,
// and the device never becomes observable as available in between.
func (s *Server) transferAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid assignment id")
		return
	}

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	if req.UserID == 0 {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id is required")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Assignment
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		a, err := getAssignmentForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if !a.Active {
			return errConflict("assignment is not active")
		}
		if a.UserID == req.UserID {
			return errConflict("device is already assigned to this user")
		}
		if _, err := getDeviceForUpdate(r.Context(), tx, a.DeviceID); err != nil {
			return err
		}
		if err := checkHolder(r.Context(), tx, req.UserID); err != nil {
			return err
		}
		prev := a.Snapshot()

		if _, err := tx.ExecContext(r.Context(), `
			UPDATE assignments SET returned_at = now(), active = false, updated_at = now()
			WHERE id = $1`, id); err != nil {
			return err
		}

		err = scanAssignment(tx.QueryRowContext(r.Context(), `
			INSERT INTO assignments (device_id, user_id, assigned_at, active, notes)
			VALUES ($1, $2, now(), true, $3)
			RETURNING `+assignmentColumns, a.DeviceID, req.UserID, req.Notes), &out)
		if err != nil {
			return err
		}

		// device stays unavailable throughout; no write to devices.available

		priorUserID := a.UserID
		if err := insertMovement(r.Context(), tx, models.Movement{
			DeviceID:    a.DeviceID,
			UserID:      req.UserID,
			Kind:        models.MovementTransferred,
			PriorUserID: &priorUserID,
			Notes:       req.Notes,
		}); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionTransfer, models.EntityAssignment, out.ID,
			fmt.Sprintf("transferred device %d from user %d to user %d", a.DeviceID, a.UserID, req.UserID),
			prev, out.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	s.Metrics.RecordOp("transfer")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// deleteAssignment handles deleting a closed assignment record. Active
// assignments cannot be deleted: they must be returned or transferred.
func (s *Server) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid assignment id")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		a, err := getAssignmentForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if a.Active {
			return errConflict("assignment is active; return or transfer it instead")
		}

		if _, err := tx.ExecContext(r.Context(), `DELETE FROM assignments WHERE id = $1`, id); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionDelete, models.EntityAssignment, id,
			fmt.Sprintf("deleted closed assignment %d for device %d", id, a.DeviceID), a.Snapshot(), nil)
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listAssignments handles assignment listing. status accepts active or
// returned.
func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
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
	if userIDStr := strings.TrimSpace(r.URL.Query().Get("user_id")); userIDStr != "" {
		if userID, err := strconv.ParseInt(userIDStr, 10, 64); err == nil {
			clauses = append(clauses, fmt.Sprintf("user_id = $%d", arg))
			args = append(args, userID)
			arg++
		}
	}
	switch params.status {
	case "":
	case "active":
		clauses = append(clauses, "active = true")
	case "returned":
		clauses = append(clauses, "active = false")
	default:
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be active or returned")
		return
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT `+assignmentColumns+`,
		       COUNT(*) OVER() as total_count
		FROM assignments%s`, whereClause)

	allowedSort := map[string]string{
		"id":          "id",
		"assigned_at": "assigned_at",
		"returned_at": "returned_at",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	assignments := []interface{}{}
	var totalCount int
	for rows.Next() {
		var a models.Assignment
		if err := scanAssignment(rows, &a, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		assignments = append(assignments, a)
	}

	sendListResponse(w, assignments, totalCount, params)
}
