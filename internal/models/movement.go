package models

import "time"

// Movement kinds, one per custody-changing operation
const (
	MovementAssigned    = "assigned"
	MovementReturned    = "returned"
	MovementTransferred = "transferred"
)

// Movement is an append-only custody-change event. Rows are only ever written
// inside the transaction of the operation that caused them.
type Movement struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"device_id"`
	UserID      int64     `json:"user_id"`
	Kind        string    `json:"kind"`
	PriorUserID *int64    `json:"prior_user_id,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
