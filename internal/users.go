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
	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, email, password_hash, name, role, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }, u *models.User, extra ...any) error {
	dest := []any{&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// loginUser authenticates a user and issues a JWT
func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required")
		return
	}

	var user models.User
	err := scanUser(s.DB.QueryRowContext(r.Context(), `
		SELECT `+userColumns+`
		FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(req.Email))), &user)
	if err == sql.ErrNoRows {
		sendError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	if !user.IsActive {
		sendError(w, http.StatusUnauthorized, "ACCOUNT_DISABLED", "account is disabled")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		sendError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	}

	token, err := s.JWTManager.GenerateToken(user.ID, user.Role)
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models.LoginResponse{Token: token, User: user.Redacted()}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// createUser handles creating a new user
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}

	var fields []schema.FieldError
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fields = append(fields, fieldErr("email", "a valid email is required"))
	}
	if len(req.Password) < 8 {
		fields = append(fields, fieldErr("password", "must be at least 8 characters"))
	}
	if strings.TrimSpace(req.Name) == "" {
		fields = append(fields, fieldErr("name", "required"))
	}
	if !models.IsValidRole(req.Role) {
		fields = append(fields, fieldErr("role", "must be admin or employee"))
	}
	if len(fields) > 0 {
		sendValidationErrors(w, fields)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeOpError(w, err)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var user models.User
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		err := scanUser(tx.QueryRowContext(r.Context(), `
			INSERT INTO users (email, password_hash, name, role, is_active)
			VALUES ($1, $2, $3, $4, true)
			RETURNING `+userColumns, req.Email, string(hashedPassword), req.Name, req.Role), &user)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("user with this email already exists")
			}
			return err
		}
		return insertAudit(r.Context(), tx, actorID, models.ActionCreate, models.EntityUser, user.ID,
			"created user "+user.Email, nil, user.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(user.Redacted()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// listUsers handles user listing
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}
	if role := strings.TrimSpace(r.URL.Query().Get("role")); role != "" {
		clauses = append(clauses, fmt.Sprintf("role = $%d", arg))
		args = append(args, role)
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT `+userColumns+`,
		       COUNT(*) OVER() as total_count
		FROM users%s`, whereClause)

	allowedSort := map[string]string{
		"id":         "id",
		"email":      "email",
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

	users := []interface{}{}
	var totalCount int
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		users = append(users, u.Redacted())
	}

	sendListResponse(w, users, totalCount, params)
}

// getUser handles the expanded user read: the user plus the devices they
// currently hold
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}

	var user models.User
	err = scanUser(s.DB.QueryRowContext(r.Context(), `
		SELECT `+userColumns+`
		FROM users WHERE id = $1`, id), &user)
	if err == sql.ErrNoRows {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT `+prefixColumns("d", deviceColumns)+`
		FROM devices d
		JOIN assignments a ON a.device_id = d.id AND a.active
		WHERE a.user_id = $1
		ORDER BY d.id`, user.ID)
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

	out := struct {
		models.User
		Devices []models.Device `json:"devices"`
	}{User: user.Redacted(), Devices: devices}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// updateUser handles updating a user's name, role, or active flag
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}

	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}
	if req.Name == nil && req.Role == nil && req.IsActive == nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "no fields to update")
		return
	}
	if req.Role != nil && !models.IsValidRole(*req.Role) {
		sendValidationErrors(w, []schema.FieldError{fieldErr("role", "must be admin or employee")})
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.User
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		var current models.User
		err := scanUser(tx.QueryRowContext(r.Context(), `
			SELECT `+userColumns+`
			FROM users WHERE id = $1
			FOR UPDATE`, id), &current)
		if err == sql.ErrNoRows {
			return errNotFound("user not found")
		}
		if err != nil {
			return err
		}
		prev := current.Snapshot()

		name := current.Name
		if req.Name != nil {
			name = *req.Name
		}
		role := current.Role
		if req.Role != nil {
			role = *req.Role
		}
		isActive := current.IsActive
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		err = scanUser(tx.QueryRowContext(r.Context(), `
			UPDATE users SET name = $1, role = $2, is_active = $3, updated_at = now()
			WHERE id = $4
			RETURNING `+userColumns, name, role, isActive, id), &out)
		if err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionUpdate, models.EntityUser, out.ID,
			"updated user "+out.Email, prev, out.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out.Redacted()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// deleteUser handles deleting a user. A user still holding devices cannot be
// deleted.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	if actorID == id {
		sendError(w, http.StatusConflict, "CONFLICT", "cannot delete your own account")
		return
	}

	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		var current models.User
		err := scanUser(tx.QueryRowContext(r.Context(), `
			SELECT `+userColumns+`
			FROM users WHERE id = $1
			FOR UPDATE`, id), &current)
		if err == sql.ErrNoRows {
			return errNotFound("user not found")
		}
		if err != nil {
			return err
		}

		var holdsDevices bool
		if err := tx.QueryRowContext(r.Context(),
			`SELECT EXISTS (SELECT 1 FROM assignments WHERE user_id = $1 AND active)`, id).Scan(&holdsDevices); err != nil {
			return err
		}
		if holdsDevices {
			return errConflict("user still holds assigned devices")
		}

		if _, err := tx.ExecContext(r.Context(), `DELETE FROM users WHERE id = $1`, id); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionDelete, models.EntityUser, id,
			"deleted user "+current.Email, current.Snapshot(), nil)
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getProfile returns the acting user's own record
func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	actorID := auth.UserIDFromContext(r.Context())

	var user models.User
	err := scanUser(s.DB.QueryRowContext(r.Context(), `
		SELECT `+userColumns+`
		FROM users WHERE id = $1`, actorID), &user)
	if err == sql.ErrNoRows {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user.Redacted()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
