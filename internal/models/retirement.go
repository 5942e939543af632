package models

import "time"

// Retirement statuses. A disposed retirement is terminal: it can never be
// restored or flipped back to retired.
const (
	RetirementRetired  = "retired"
	RetirementDisposed = "disposed"
)

// MaxRetirementReasonLen bounds the free-text reason
const MaxRetirementReasonLen = 500

// Retirement removes a device from the available pool without deleting it
type Retirement struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"device_id"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	RetiredAt time.Time `json:"retired_at"`
	RetiredBy int64     `json:"retired_by"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns the fields worth recording in an audit entry
func (r *Retirement) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"id":         r.ID,
		"device_id":  r.DeviceID,
		"reason":     r.Reason,
		"status":     r.Status,
		"retired_at": r.RetiredAt,
		"retired_by": r.RetiredBy,
	}
	if r.Notes != nil {
		snap["notes"] = *r.Notes
	}
	return snap
}

// IsValidRetirementStatus checks a status value against the known set
func IsValidRetirementStatus(s string) bool {
	return s == RetirementRetired || s == RetirementDisposed
}

// RetireRequest represents the request body for retiring a device
type RetireRequest struct {
	DeviceID int64   `json:"device_id"`
	Reason   string  `json:"reason"`
	Status   string  `json:"status,omitempty"` // defaults to "retired"
	Notes    *string `json:"notes,omitempty"`
}

// UpdateRetirementRequest represents the request body for updating a
// retirement record
type UpdateRetirementRequest struct {
	Status *string `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}
