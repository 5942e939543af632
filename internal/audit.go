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

// insertAudit appends one audit entry inside the caller's transaction. It is
// never called outside a transaction: a failed operation must leave no trace.
func insertAudit(ctx context.Context, tx *sql.Tx, actorID int64, action, entityType string, entityID int64, description string, prev, next models.JSONB) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (user_id, action, entity_type, entity_id, description, previous_state, new_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, actorID, action, entityType, entityID, description, prev, next)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// listAuditEntries handles the audit trail query surface: newest first, one
// view mode per request (all entries, by-entity, or by-user).
func (s *Server) listAuditEntries(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	entityType := strings.TrimSpace(r.URL.Query().Get("entity_type"))
	entityIDStr := strings.TrimSpace(r.URL.Query().Get("entity_id"))
	userIDStr := strings.TrimSpace(r.URL.Query().Get("user_id"))

	byEntity := entityType != "" || entityIDStr != ""
	byUser := userIDStr != ""
	if byEntity && byUser {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "entity and user filters are mutually exclusive")
		return
	}
	if byEntity && (entityType == "" || entityIDStr == "") {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "entity_type and entity_id must be supplied together")
		return
	}

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if byEntity {
		entityID, err := strconv.ParseInt(entityIDStr, 10, 64)
		if err != nil {
			sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "entity_id must be an integer")
			return
		}
		clauses = append(clauses, fmt.Sprintf("entity_type = $%d", arg))
		args = append(args, entityType)
		arg++
		clauses = append(clauses, fmt.Sprintf("entity_id = $%d", arg))
		args = append(args, entityID)
		arg++
	}
	if byUser {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id must be an integer")
			return
		}
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", arg))
		args = append(args, userID)
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT id, user_id, action, entity_type, entity_id, description, previous_state, new_state, created_at,
		       COUNT(*) OVER() as total_count
		FROM audit_entries%s
		ORDER BY created_at DESC, id DESC`, whereClause)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	entries := []interface{}{}
	var totalCount int
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID, &e.Description, &e.PreviousState, &e.NewState, &e.CreatedAt, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		entries = append(entries, e)
	}

	sendListResponse(w, entries, totalCount, params)
}
