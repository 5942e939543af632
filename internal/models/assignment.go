package models

import "time"

// Assignment is a custody record linking one device to one holder for a time
// span. At most one active assignment may exist per device.
type Assignment struct {
	ID         int64      `json:"id"`
	DeviceID   int64      `json:"device_id"`
	UserID     int64      `json:"user_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Active     bool       `json:"active"`
	Notes      *string    `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Snapshot returns the fields worth recording in an audit entry
func (a *Assignment) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"id":          a.ID,
		"device_id":   a.DeviceID,
		"user_id":     a.UserID,
		"assigned_at": a.AssignedAt,
		"active":      a.Active,
	}
	if a.ReturnedAt != nil {
		snap["returned_at"] = *a.ReturnedAt
	}
	return snap
}

// AssignRequest represents the request body for assigning a device
type AssignRequest struct {
	DeviceID int64   `json:"device_id"`
	UserID   int64   `json:"user_id"`
	Notes    *string `json:"notes,omitempty"`
}

// ReturnRequest represents the request body for returning an assignment
type ReturnRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// TransferRequest represents the request body for transferring an active
// assignment to a new holder
type TransferRequest struct {
	UserID int64   `json:"user_id"`
	Notes  *string `json:"notes,omitempty"`
}
