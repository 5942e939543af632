package models

import "time"

// Warranty units accepted on a device
const (
	WarrantyYears  = "years"
	WarrantyMonths = "months"
)

// Device represents a physical asset tracked by the system.
// `available` is the single arbitration point for custody: it is flipped only
// by the custody ledger and the retirement register, never by plain updates.
type Device struct {
	ID               int64      `json:"id"`
	DeviceTypeID     int64      `json:"device_type_id"`
	Brand            string     `json:"brand"`
	Model            string     `json:"model"`
	SerialNumber     string     `json:"serial_number"`
	PlateCode        *string    `json:"plate_code,omitempty"`
	Available        bool       `json:"available"`
	Description      *string    `json:"description,omitempty"`
	AreaID           *int64     `json:"area_id,omitempty"`
	Storage          *string    `json:"storage,omitempty"`
	RAM              *string    `json:"ram,omitempty"`
	Processor        *string    `json:"processor,omitempty"`
	DVRStorage       *string    `json:"dvr_storage,omitempty"`
	PurchaseDate     *time.Time `json:"purchase_date,omitempty"`
	WarrantyDuration *int       `json:"warranty_duration,omitempty"`
	WarrantyUnit     *string    `json:"warranty_unit,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Specs collects the device's specification fields keyed by field name,
// omitting unset ones
func (d *Device) Specs() map[string]string {
	out := map[string]string{}
	set := func(name string, v *string) {
		if v != nil && *v != "" {
			out[name] = *v
		}
	}
	set("storage", d.Storage)
	set("ram", d.RAM)
	set("processor", d.Processor)
	set("dvr_storage", d.DVRStorage)
	return out
}

// Snapshot returns the fields worth recording in an audit entry
func (d *Device) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"id":             d.ID,
		"device_type_id": d.DeviceTypeID,
		"brand":          d.Brand,
		"model":          d.Model,
		"serial_number":  d.SerialNumber,
		"available":      d.Available,
	}
	if d.PlateCode != nil {
		snap["plate_code"] = *d.PlateCode
	}
	if d.AreaID != nil {
		snap["area_id"] = *d.AreaID
	}
	for k, v := range d.Specs() {
		snap[k] = v
	}
	return snap
}

// CreateDeviceRequest represents the request body for creating a new device
type CreateDeviceRequest struct {
	DeviceTypeID     int64             `json:"device_type_id"`
	Brand            string            `json:"brand"`
	Model            string            `json:"model"`
	SerialNumber     string            `json:"serial_number"`
	PlateCode        *string           `json:"plate_code,omitempty"`
	Description      *string           `json:"description,omitempty"`
	AreaID           *int64            `json:"area_id,omitempty"`
	Specs            map[string]string `json:"specs,omitempty"`
	PurchaseDate     *time.Time        `json:"purchase_date,omitempty"`
	WarrantyDuration *int              `json:"warranty_duration,omitempty"`
	WarrantyUnit     *string           `json:"warranty_unit,omitempty"`
}

// UpdateDeviceRequest represents the request body for updating a device.
// Specs, when present, are re-validated against the device's type schema.
type UpdateDeviceRequest struct {
	DeviceTypeID     *int64            `json:"device_type_id,omitempty"`
	Brand            *string           `json:"brand,omitempty"`
	Model            *string           `json:"model,omitempty"`
	SerialNumber     *string           `json:"serial_number,omitempty"`
	PlateCode        *string           `json:"plate_code,omitempty"`
	Description      *string           `json:"description,omitempty"`
	AreaID           *int64            `json:"area_id,omitempty"`
	Specs            map[string]string `json:"specs,omitempty"`
	PurchaseDate     *time.Time        `json:"purchase_date,omitempty"`
	WarrantyDuration *int              `json:"warranty_duration,omitempty"`
	WarrantyUnit     *string           `json:"warranty_unit,omitempty"`
}

// DeviceWithHolder is the expanded read of a device plus its current holder,
// if any
type DeviceWithHolder struct {
	Device
	Holder     *User       `json:"holder,omitempty"`
	Assignment *Assignment `json:"assignment,omitempty"`
}

// ValidWarrantyPair reports whether duration and unit are supplied together
// (or not at all) with a recognized unit and a positive duration
func ValidWarrantyPair(duration *int, unit *string) bool {
	if duration == nil && unit == nil {
		return true
	}
	if duration == nil || unit == nil {
		return false
	}
	if *duration <= 0 {
		return false
	}
	return *unit == WarrantyYears || *unit == WarrantyMonths
}
