package models

import "time"

// Area is a physical location devices can be grouped under
type Area struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns the fields worth recording in an audit entry
func (a *Area) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"id":   a.ID,
		"name": a.Name,
	}
	if a.Description != nil {
		snap["description"] = *a.Description
	}
	return snap
}

// CreateAreaRequest represents the request body for creating an area
type CreateAreaRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateAreaRequest represents the request body for updating an area
type UpdateAreaRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AreaWithDevices is the expanded read of an area plus the devices filed
// under it
type AreaWithDevices struct {
	Area
	Devices []Device `json:"devices"`
}
