package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit actions. Custody operations get their own verbs so the trail reads as
// domain history, not table churn.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionAssign   = "assign"
	ActionReturn   = "return"
	ActionTransfer = "transfer"
	ActionRetire   = "retire"
	ActionRestore  = "restore"
)

// Entity kinds referenced by audit entries
const (
	EntityDevice     = "device"
	EntityDeviceType = "device_type"
	EntityAssignment = "assignment"
	EntityRetirement = "retirement"
	EntityUser       = "user"
	EntityArea       = "area"
)

// AuditEntry is an append-only record of a state-changing action, with
// before/after snapshots where they exist
type AuditEntry struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      int64     `json:"entity_id"`
	Description   string    `json:"description"`
	PreviousState JSONB     `json:"previous_state,omitempty"`
	NewState      JSONB     `json:"new_state,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// JSONB is a custom type for JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}
