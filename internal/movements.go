package internal

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"device-custody-api/internal/models"
)

// insertMovement appends one movement row inside the caller's transaction.
// Movements are only ever written by custody-changing operations.
func insertMovement(ctx context.Context, tx *sql.Tx, m models.Movement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO movements (device_id, user_id, kind, prior_user_id, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, m.DeviceID, m.UserID, m.Kind, m.PriorUserID, m.Notes)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

// listMovements handles the movement log query surface: newest first, one
// view mode per request (all movements, by-device, or by-user).
func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	deviceIDStr := strings.TrimSpace(r.URL.Query().Get("device_id"))
	userIDStr := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if deviceIDStr != "" && userIDStr != "" {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "device and user filters are mutually exclusive")
		return
	}

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if deviceIDStr != "" {
		deviceID, err := strconv.ParseInt(deviceIDStr, 10, 64)
		if err != nil {
			sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "device_id must be an integer")
			return
		}
		clauses = append(clauses, fmt.Sprintf("device_id = $%d", arg))
		args = append(args, deviceID)
		arg++
	}
	if userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id must be an integer")
			return
		}
		// "by-user" covers both sides of a transfer
		clauses = append(clauses, fmt.Sprintf("(user_id = $%d OR prior_user_id = $%d)", arg, arg))
		args = append(args, userID)
		arg++
	}
	if params.status != "" {
		clauses = append(clauses, fmt.Sprintf("kind = $%d", arg))
		args = append(args, params.status)
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT id, device_id, user_id, kind, prior_user_id, notes, created_at,
		       COUNT(*) OVER() as total_count
		FROM movements%s
		ORDER BY created_at DESC, id DESC`, whereClause)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	movements := []interface{}{}
	var totalCount int
	for rows.Next() {
		var m models.Movement
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.UserID, &m.Kind, &m.PriorUserID, &m.Notes, &m.CreatedAt, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		movements = append(movements, m)
	}

	sendListResponse(w, movements, totalCount, params)
}
