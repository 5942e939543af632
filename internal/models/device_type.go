package models

import "time"

// SpecFields is the closed set of specification fields a device type may
// require. Order here is the order they are validated and reported in.
var SpecFields = []string{"storage", "ram", "processor", "dvr_storage"}

// IsSpecField checks membership in the allowed specification-field set
func IsSpecField(name string) bool {
	for _, f := range SpecFields {
		if f == name {
			return true
		}
	}
	return false
}

// DeviceType defines a category of device and which specification fields
// devices of that type must carry
type DeviceType struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	RequiredFields []string  `json:"required_fields"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateDeviceTypeRequest represents the request body for creating a device type
type CreateDeviceTypeRequest struct {
	Name           string   `json:"name"`
	Description    *string  `json:"description,omitempty"`
	RequiredFields []string `json:"required_fields"`
}
