package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"device-custody-api/internal/models"
	"device-custody-api/internal/schema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tealeg/xlsx/v3"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Entities the importer understands
const (
	EntityDevices = "devices"
	EntityUsers   = "users"
)

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	Entity    string
	DryRun    bool
	MaxErrors int            // default 50
	Mapping   *MappingConfig // defaults to DefaultMapping()
	ActorID   int64          // recorded as the audit actor for every inserted row
}

// RowError represents an error that occurred during row processing.
// Row is the 1-based row number as seen in the spreadsheet.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportSummary contains the overall import statistics. Each row succeeds or
// fails on its own; one bad row never aborts the batch.
type ImportSummary struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	DryRun     bool       `json:"dry_run"`
	Errors     []RowError `json:"errors,omitempty"`
}

// MappingConfig maps spreadsheet column headers onto canonical field names.
// Keys of Aliases are canonical fields; values are accepted header spellings.
type MappingConfig struct {
	Version int                 `yaml:"version"`
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadMapping reads a YAML mapping config
func LoadMapping(r io.Reader) (*MappingConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping config: %w", err)
	}
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config: %w", err)
	}
	return &m, nil
}

// DefaultMapping returns the header aliases accepted out of the box
func DefaultMapping() *MappingConfig {
	return &MappingConfig{
		Version: 1,
		Aliases: map[string][]string{
			"brand":         {"Brand", "Manufacturer", "Make"},
			"model":         {"Model"},
			"serial_number": {"Serial Number", "Serial", "S/N"},
			"device_type":   {"Device Type", "Type", "Category"},
			"plate_code":    {"Plate Code", "Plate", "Asset Tag"},
			"area":          {"Area", "Location"},
			"description":   {"Description", "Notes"},
			"storage":       {"Storage", "Disk"},
			"ram":           {"RAM", "Memory"},
			"processor":     {"Processor", "CPU"},
			"dvr_storage":   {"DVR Storage"},
			"purchase_date": {"Purchase Date", "Purchased"},
			"email":         {"Email", "E-mail"},
			"name":          {"Name", "Full Name"},
			"role":          {"Role"},
			"password":      {"Password", "Initial Password"},
		},
	}
}

// DeviceRow is one parsed device line from the sheet
type DeviceRow struct {
	Row          int
	Brand        string
	Model        string
	SerialNumber string
	DeviceType   string
	PlateCode    string
	Area         string
	Description  string
	Specs        map[string]string
	PurchaseDate *time.Time
}

// UserRow is one parsed user line from the sheet
type UserRow struct {
	Row      int
	Email    string
	Name     string
	Role     string
	Password string
}

// ImportExcel processes an Excel file and imports its rows. Parsing and
// per-row validation are independent of the database; inserts run one row at
// a time so failures stay isolated.
func ImportExcel(ctx context.Context, db *pgxpool.Pool, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{DryRun: opts.DryRun, Errors: []RowError{}}

	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}
	if opts.Mapping == nil {
		opts.Mapping = DefaultMapping()
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return summary, errors.New("workbook has no sheets")
	}
	sheet := xlFile.Sheets[0]

	switch opts.Entity {
	case EntityDevices:
		rows, parseErrs := ParseDeviceSheet(sheet, opts.Mapping)
		summary.Total = len(rows) + len(parseErrs)
		summary.Errors = append(summary.Errors, parseErrs...)
		summary.Failed = len(parseErrs)
		for _, row := range rows {
			if err := importDevice(ctx, db, row, opts.DryRun, opts.ActorID); err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, RowError{Row: row.Row, Message: err.Error()})
			} else {
				summary.Successful++
			}
			if summary.Failed > opts.MaxErrors {
				return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Failed)
			}
		}
	case EntityUsers:
		rows, parseErrs := ParseUserSheet(sheet, opts.Mapping)
		summary.Total = len(rows) + len(parseErrs)
		summary.Errors = append(summary.Errors, parseErrs...)
		summary.Failed = len(parseErrs)
		for _, row := range rows {
			if err := importUser(ctx, db, row, opts.DryRun, opts.ActorID); err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, RowError{Row: row.Row, Message: err.Error()})
			} else {
				summary.Successful++
			}
			if summary.Failed > opts.MaxErrors {
				return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Failed)
			}
		}
	default:
		return summary, fmt.Errorf("unknown import entity %q", opts.Entity)
	}

	return summary, nil
}

// headerIndex resolves the sheet's header row into canonical field -> column
// index, applying the mapping's aliases case-insensitively.
func headerIndex(sheet *xlsx.Sheet, mapping *MappingConfig) (map[string]int, error) {
	headerRow, err := sheet.Row(0)
	if err != nil {
		return nil, errors.New("failed to read header row")
	}

	byAlias := make(map[string]string)
	for field, aliases := range mapping.Aliases {
		byAlias[strings.ToUpper(field)] = field
		for _, alias := range aliases {
			byAlias[strings.ToUpper(alias)] = field
		}
	}

	index := make(map[string]int)
	for col := 0; ; col++ {
		cell := headerRow.GetCell(col)
		if cell == nil {
			break
		}
		name := strings.TrimSpace(cell.String())
		if name == "" {
			break
		}
		if field, ok := byAlias[strings.ToUpper(name)]; ok {
			index[field] = col
		}
	}
	if len(index) == 0 {
		return nil, errors.New("no recognizable columns in header row")
	}
	return index, nil
}

func cellValue(row *xlsx.Row, index map[string]int, field string) string {
	col, ok := index[field]
	if !ok {
		return ""
	}
	cell := row.GetCell(col)
	if cell == nil {
		return ""
	}
	return strings.TrimSpace(cell.String())
}

func rowIsEmpty(row *xlsx.Row, index map[string]int) bool {
	for _, col := range index {
		cell := row.GetCell(col)
		if cell != nil && strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}

// ParseDeviceSheet reads device rows from the sheet and validates what can be
// validated without the database. Returned errors carry 1-based row numbers.
func ParseDeviceSheet(sheet *xlsx.Sheet, mapping *MappingConfig) ([]DeviceRow, []RowError) {
	index, err := headerIndex(sheet, mapping)
	if err != nil {
		return nil, []RowError{{Row: 1, Message: err.Error()}}
	}

	var out []DeviceRow
	var rowErrs []RowError
	for i := 1; ; i++ {
		row, err := sheet.Row(i)
		if err != nil {
			break
		}
		if rowIsEmpty(row, index) {
			break
		}

		d := DeviceRow{
			Row:          i + 1,
			Brand:        cellValue(row, index, "brand"),
			Model:        cellValue(row, index, "model"),
			SerialNumber: cellValue(row, index, "serial_number"),
			DeviceType:   cellValue(row, index, "device_type"),
			PlateCode:    cellValue(row, index, "plate_code"),
			Area:         cellValue(row, index, "area"),
			Description:  cellValue(row, index, "description"),
			Specs:        map[string]string{},
		}
		for _, field := range []string{"storage", "ram", "processor", "dvr_storage"} {
			if v := cellValue(row, index, field); v != "" {
				d.Specs[field] = v
			}
		}
		if v := cellValue(row, index, "purchase_date"); v != "" {
			t, err := parseDate(v)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Row: d.Row, Message: err.Error()})
				continue
			}
			d.PurchaseDate = &t
		}

		var missing []string
		for field, value := range map[string]string{
			"brand": d.Brand, "model": d.Model, "serial_number": d.SerialNumber, "device_type": d.DeviceType,
		} {
			if value == "" {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			rowErrs = append(rowErrs, RowError{Row: d.Row, Message: "missing required columns: " + strings.Join(missing, ", ")})
			continue
		}

		out = append(out, d)
	}
	return out, rowErrs
}

// ParseUserSheet reads user rows from the sheet
func ParseUserSheet(sheet *xlsx.Sheet, mapping *MappingConfig) ([]UserRow, []RowError) {
	index, err := headerIndex(sheet, mapping)
	if err != nil {
		return nil, []RowError{{Row: 1, Message: err.Error()}}
	}

	var out []UserRow
	var rowErrs []RowError
	for i := 1; ; i++ {
		row, err := sheet.Row(i)
		if err != nil {
			break
		}
		if rowIsEmpty(row, index) {
			break
		}

		u := UserRow{
			Row:      i + 1,
			Email:    strings.ToLower(cellValue(row, index, "email")),
			Name:     cellValue(row, index, "name"),
			Role:     strings.ToLower(cellValue(row, index, "role")),
			Password: cellValue(row, index, "password"),
		}
		if u.Role == "" {
			u.Role = "employee"
		}

		switch {
		case u.Email == "" || !strings.Contains(u.Email, "@"):
			rowErrs = append(rowErrs, RowError{Row: u.Row, Message: "a valid email is required"})
		case u.Name == "":
			rowErrs = append(rowErrs, RowError{Row: u.Row, Message: "name is required"})
		case u.Role != "admin" && u.Role != "employee":
			rowErrs = append(rowErrs, RowError{Row: u.Row, Message: "role must be admin or employee"})
		case len(u.Password) < 8:
			rowErrs = append(rowErrs, RowError{Row: u.Row, Message: "password must be at least 8 characters"})
		default:
			out = append(out, u)
		}
	}
	return out, rowErrs
}

func parseDate(value string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"01/02/2006",
		"02.01.2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	// Excel serial date numbers show up when the cell is date-formatted
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return epoch.Add(time.Duration(serial * 24 * float64(time.Hour))), nil
	}
	return time.Time{}, fmt.Errorf("invalid date: %s", value)
}

func importDevice(ctx context.Context, db *pgxpool.Pool, row DeviceRow, dryRun bool, actorID int64) error {
	var typeID int64
	var requiredFields []string
	err := db.QueryRow(ctx,
		`SELECT id, required_fields FROM device_types WHERE name = $1`, row.DeviceType).
		Scan(&typeID, &requiredFields)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("unknown device type %q", row.DeviceType)
	}
	if err != nil {
		return err
	}

	if fieldErrs := schema.ValidateSpecs(requiredFields, row.Specs); len(fieldErrs) > 0 {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Field+": "+fe.Message)
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	var areaID *int64
	if row.Area != "" {
		var id int64
		err := db.QueryRow(ctx, `SELECT id FROM areas WHERE name = $1`, row.Area).Scan(&id)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("unknown area %q", row.Area)
		}
		if err != nil {
			return err
		}
		areaID = &id
	}

	if dryRun {
		return nil
	}

	// Insert and audit entry succeed or fail together, same as the
	// device creation endpoint.
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var deviceID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO devices (device_type_id, brand, model, serial_number, plate_code, available, description, area_id,
		                     storage, ram, processor, dvr_storage, purchase_date)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		typeID, row.Brand, row.Model, row.SerialNumber,
		nullable(row.PlateCode), nullable(row.Description), areaID,
		nullable(row.Specs["storage"]), nullable(row.Specs["ram"]),
		nullable(row.Specs["processor"]), nullable(row.Specs["dvr_storage"]),
		row.PurchaseDate).Scan(&deviceID)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("device with serial number %q already exists", row.SerialNumber)
		}
		return err
	}

	d := models.Device{
		ID:           deviceID,
		DeviceTypeID: typeID,
		Brand:        row.Brand,
		Model:        row.Model,
		SerialNumber: row.SerialNumber,
		Available:    true,
		AreaID:       areaID,
	}
	if row.PlateCode != "" {
		d.PlateCode = &row.PlateCode
	}
	setSpec(&d.Storage, row.Specs["storage"])
	setSpec(&d.RAM, row.Specs["ram"])
	setSpec(&d.Processor, row.Specs["processor"])
	setSpec(&d.DVRStorage, row.Specs["dvr_storage"])

	if err := appendAudit(ctx, tx, actorID, models.ActionCreate, models.EntityDevice, deviceID,
		fmt.Sprintf("imported device %s %s (%s)", d.Brand, d.Model, d.SerialNumber), d.Snapshot()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func importUser(ctx context.Context, db *pgxpool.Pool, row UserRow, dryRun bool, actorID int64) error {
	if dryRun {
		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, row.Email).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("user with email %q already exists", row.Email)
		}
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(row.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, role, is_active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id`,
		row.Email, string(hash), row.Name, row.Role).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("user with email %q already exists", row.Email)
		}
		return err
	}

	u := models.User{ID: userID, Email: row.Email, Name: row.Name, Role: row.Role, IsActive: true}
	if err := appendAudit(ctx, tx, actorID, models.ActionCreate, models.EntityUser, userID,
		"imported user "+u.Email, u.Snapshot()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// appendAudit writes the audit entry for one imported row inside its
// transaction.
func appendAudit(ctx context.Context, tx pgx.Tx, actorID int64, action, entityType string, entityID int64, description string, newState map[string]interface{}) error {
	state, err := json.Marshal(newState)
	if err != nil {
		return fmt.Errorf("failed to encode audit state: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_entries (user_id, action, entity_type, entity_id, description, new_state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		actorID, action, entityType, entityID, description, state)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func setSpec(dst **string, v string) {
	if v != "" {
		s := v
		*dst = &s
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
