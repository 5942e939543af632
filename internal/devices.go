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

const deviceColumns = `id, device_type_id, brand, model, serial_number, plate_code, available, description, area_id,
	       storage, ram, processor, dvr_storage, purchase_date, warranty_duration, warranty_unit, created_at, updated_at`

func scanDevice(row interface{ Scan(dest ...any) error }, d *models.Device, extra ...any) error {
	dest := []any{
		&d.ID, &d.DeviceTypeID, &d.Brand, &d.Model, &d.SerialNumber, &d.PlateCode, &d.Available, &d.Description, &d.AreaID,
		&d.Storage, &d.RAM, &d.Processor, &d.DVRStorage, &d.PurchaseDate, &d.WarrantyDuration, &d.WarrantyUnit, &d.CreatedAt, &d.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

// getDeviceForUpdate locks the device row for the rest of the transaction.
// Every custody-changing operation goes through this lock, so concurrent
// attempts on the same device serialize.
func getDeviceForUpdate(ctx context.Context, tx *sql.Tx, deviceID int64) (*models.Device, error) {
	var d models.Device
	err := scanDevice(tx.QueryRowContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices WHERE id = $1
		FOR UPDATE`, deviceID), &d)
	if err == sql.ErrNoRows {
		return nil, errNotFound("device not found")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// listDevices handles device listing with filters and pagination.
// status accepts the device's logical state: available, assigned, retired,
// or disposed.
func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if typeIDStr := strings.TrimSpace(r.URL.Query().Get("device_type_id")); typeIDStr != "" {
		if typeID, err := strconv.ParseInt(typeIDStr, 10, 64); err == nil {
			clauses = append(clauses, fmt.Sprintf("device_type_id = $%d", arg))
			args = append(args, typeID)
			arg++
		}
	}

	if areaIDStr := strings.TrimSpace(r.URL.Query().Get("area_id")); areaIDStr != "" {
		if areaID, err := strconv.ParseInt(areaIDStr, 10, 64); err == nil {
			clauses = append(clauses, fmt.Sprintf("area_id = $%d", arg))
			args = append(args, areaID)
			arg++
		}
	}

	switch params.status {
	case "":
	case "available":
		clauses = append(clauses, "available = true")
	case "assigned":
		clauses = append(clauses, "EXISTS (SELECT 1 FROM assignments a WHERE a.device_id = devices.id AND a.active)")
	case models.RetirementRetired, models.RetirementDisposed:
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM retirements rt WHERE rt.device_id = devices.id AND rt.status = $%d)", arg))
		args = append(args, params.status)
		arg++
	default:
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of: available, assigned, retired, disposed")
		return
	}

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(brand ILIKE $%d OR model ILIKE $%d OR serial_number ILIKE $%d)", arg, arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := fmt.Sprintf(`
		SELECT `+deviceColumns+`,
		       COUNT(*) OVER() as total_count
		FROM devices%s`, whereClause)

	allowedSort := map[string]string{
		"id":            "id",
		"brand":         "brand",
		"model":         "model",
		"serial_number": "serial_number",
		"created_at":    "created_at",
		"updated_at":    "updated_at",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()

	devices := []interface{}{}
	var totalCount int
	for rows.Next() {
		var d models.Device
		if err := scanDevice(rows, &d, &totalCount); err != nil {
			writeOpError(w, err)
			return
		}
		devices = append(devices, d)
	}

	sendListResponse(w, devices, totalCount, params)
}

// getDevice handles the expanded device read: the device plus its current
// holder and active assignment, if any
func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid device id")
		return
	}

	var out models.DeviceWithHolder
	err = scanDevice(s.DB.QueryRowContext(r.Context(), `
		SELECT `+deviceColumns+`
		FROM devices WHERE id = $1`, id), &out.Device)
	if err == sql.ErrNoRows {
		sendError(w, http.StatusNotFound, "NOT_FOUND", "device not found")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}

	var a models.Assignment
	var u models.User
	err = s.DB.QueryRowContext(r.Context(), `
		SELECT a.id, a.device_id, a.user_id, a.assigned_at, a.returned_at, a.active, a.notes, a.created_at, a.updated_at,
		       u.id, u.email, u.name, u.role, u.is_active, u.created_at, u.updated_at
		FROM assignments a
		JOIN users u ON u.id = a.user_id
		WHERE a.device_id = $1 AND a.active`, out.ID).Scan(
		&a.ID, &a.DeviceID, &a.UserID, &a.AssignedAt, &a.ReturnedAt, &a.Active, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
		&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == nil {
		out.Assignment = &a
		out.Holder = &u
	} else if err != sql.ErrNoRows {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// createDevice handles creating a new device. The whole request is rejected if
// any required specification field fails its validator; the response names
// every failing field.
func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}

	var fields []schema.FieldError
	if req.DeviceTypeID == 0 {
		fields = append(fields, fieldErr("device_type_id", "required"))
	}
	if strings.TrimSpace(req.Brand) == "" {
		fields = append(fields, fieldErr("brand", "required"))
	}
	if strings.TrimSpace(req.Model) == "" {
		fields = append(fields, fieldErr("model", "required"))
	}
	if strings.TrimSpace(req.SerialNumber) == "" {
		fields = append(fields, fieldErr("serial_number", "required"))
	}
	if !models.ValidWarrantyPair(req.WarrantyDuration, req.WarrantyUnit) {
		fields = append(fields, fieldErr("warranty", "warranty_duration and warranty_unit (years|months) must be supplied together"))
	}

	if req.DeviceTypeID != 0 {
		required, err := requiredFieldsForType(r.Context(), s.DB, req.DeviceTypeID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		fields = append(fields, schema.ValidateSpecs(required, req.Specs)...)
	}
	if len(fields) > 0 {
		sendValidationErrors(w, fields)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	var d models.Device
	err := s.inTx(r.Context(), func(tx *sql.Tx) error {
		err := scanDevice(tx.QueryRowContext(r.Context(), `
			INSERT INTO devices (device_type_id, brand, model, serial_number, plate_code, description, area_id,
			                     storage, ram, processor, dvr_storage, purchase_date, warranty_duration, warranty_unit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING `+deviceColumns,
			req.DeviceTypeID, req.Brand, req.Model, req.SerialNumber, req.PlateCode, req.Description, req.AreaID,
			specValue(req.Specs, "storage"), specValue(req.Specs, "ram"), specValue(req.Specs, "processor"), specValue(req.Specs, "dvr_storage"),
			req.PurchaseDate, req.WarrantyDuration, req.WarrantyUnit), &d)
		if err != nil {
			if isUniqueViolation(err) {
				return errConflict("device with this serial_number already exists")
			}
			return err
		}
		return insertAudit(r.Context(), tx, actorID, models.ActionCreate, models.EntityDevice, d.ID,
			fmt.Sprintf("created device %s %s (%s)", d.Brand, d.Model, d.SerialNumber), nil, d.Snapshot())
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(d); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// updateDevice handles partial device updates. Specs are re-validated against
// the device's type schema whenever specs or the type itself change. The
// available flag is never writable here: only the custody ledger and the
// retirement register may flip it.
func (s *Server) updateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid device id")
		return
	}

	var req models.UpdateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON")
		return
	}

	if req.WarrantyDuration != nil || req.WarrantyUnit != nil {
		if !models.ValidWarrantyPair(req.WarrantyDuration, req.WarrantyUnit) {
			sendValidationErrors(w, []schema.FieldError{
				fieldErr("warranty", "warranty_duration and warranty_unit (years|months) must be supplied together"),
			})
			return
		}
	}

	actorID := auth.UserIDFromContext(r.Context())

	var out models.Device
	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		current, err := getDeviceForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}
		prev := current.Snapshot()

		// Re-validate specs whenever the type or the specs change
		if req.DeviceTypeID != nil || req.Specs != nil {
			typeID := current.DeviceTypeID
			if req.DeviceTypeID != nil {
				typeID = *req.DeviceTypeID
			}
			specs := current.Specs()
			if req.Specs != nil {
				specs = req.Specs
			}
			required, err := requiredFieldsForType(r.Context(), tx, typeID)
			if err != nil {
				return err
			}
			if fields := schema.ValidateSpecs(required, specs); len(fields) > 0 {
				return errValidation(fields...)
			}
		}

		type set struct {
			col string
			val interface{}
		}
		sets := make([]set, 0, 12)
		if req.DeviceTypeID != nil {
			sets = append(sets, set{"device_type_id", *req.DeviceTypeID})
		}
		if req.Brand != nil {
			sets = append(sets, set{"brand", *req.Brand})
		}
		if req.Model != nil {
			sets = append(sets, set{"model", *req.Model})
		}
		if req.SerialNumber != nil {
			sets = append(sets, set{"serial_number", *req.SerialNumber})
		}
		if req.PlateCode != nil {
			sets = append(sets, set{"plate_code", nullIfEmpty(req.PlateCode)})
		}
		if req.Description != nil {
			sets = append(sets, set{"description", nullIfEmpty(req.Description)})
		}
		if req.AreaID != nil {
			sets = append(sets, set{"area_id", *req.AreaID})
		}
		if req.Specs != nil {
			sets = append(sets, set{"storage", specValue(req.Specs, "storage")})
			sets = append(sets, set{"ram", specValue(req.Specs, "ram")})
			sets = append(sets, set{"processor", specValue(req.Specs, "processor")})
			sets = append(sets, set{"dvr_storage", specValue(req.Specs, "dvr_storage")})
		}
		if req.PurchaseDate != nil {
			sets = append(sets, set{"purchase_date", *req.PurchaseDate})
		}
		if req.WarrantyDuration != nil {
			sets = append(sets, set{"warranty_duration", *req.WarrantyDuration})
			sets = append(sets, set{"warranty_unit", *req.WarrantyUnit})
		}
		if len(sets) == 0 {
			return errValidation(fieldErr("body", "no fields to update"))
		}

		args := make([]interface{}, 0, len(sets)+1)
		sqlStr := "UPDATE devices SET updated_at = now()"
		for i, st := range sets {
			sqlStr += fmt.Sprintf(", %s = $%d", st.col, i+1)
			args = append(args, st.val)
		}
		sqlStr += fmt.Sprintf(" WHERE id = $%d RETURNING ", len(args)+1) + deviceColumns
		args = append(args, id)

		if err := scanDevice(tx.QueryRowContext(r.Context(), sqlStr, args...), &out); err != nil {
			if isUniqueViolation(err) {
				return errConflict("device with this serial_number already exists")
			}
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionUpdate, models.EntityDevice, out.ID,
			fmt.Sprintf("updated device %s", out.SerialNumber), prev, out.Snapshot())
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

// deleteDevice handles deleting a device. Deletion conflicts while an active
// assignment or a non-disposed retirement references the device. Historical
// assignment, movement, and audit rows are kept.
func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid device id")
		return
	}

	actorID := auth.UserIDFromContext(r.Context())

	err = s.inTx(r.Context(), func(tx *sql.Tx) error {
		d, err := getDeviceForUpdate(r.Context(), tx, id)
		if err != nil {
			return err
		}

		var hasActive bool
		if err := tx.QueryRowContext(r.Context(),
			`SELECT EXISTS (SELECT 1 FROM assignments WHERE device_id = $1 AND active)`, id).Scan(&hasActive); err != nil {
			return err
		}
		if hasActive {
			return errConflict("device has an active assignment")
		}

		var hasRetirement bool
		if err := tx.QueryRowContext(r.Context(),
			`SELECT EXISTS (SELECT 1 FROM retirements WHERE device_id = $1 AND status <> $2)`, id, models.RetirementDisposed).Scan(&hasRetirement); err != nil {
			return err
		}
		if hasRetirement {
			return errConflict("device has a non-disposed retirement record")
		}

		if _, err := tx.ExecContext(r.Context(), `DELETE FROM devices WHERE id = $1`, id); err != nil {
			return err
		}

		return insertAudit(r.Context(), tx, actorID, models.ActionDelete, models.EntityDevice, id,
			fmt.Sprintf("deleted device %s", d.SerialNumber), d.Snapshot(), nil)
	})
	if err != nil {
		writeOpError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func specValue(specs map[string]string, name string) interface{} {
	if v, ok := specs[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return nil
}

func nullIfEmpty(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
