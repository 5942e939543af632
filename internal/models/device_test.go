package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestValidWarrantyPair(t *testing.T) {
	assert.True(t, ValidWarrantyPair(nil, nil))
	assert.True(t, ValidWarrantyPair(ptr(2), ptr(WarrantyYears)))
	assert.True(t, ValidWarrantyPair(ptr(18), ptr(WarrantyMonths)))

	assert.False(t, ValidWarrantyPair(ptr(2), nil), "duration without unit")
	assert.False(t, ValidWarrantyPair(nil, ptr(WarrantyYears)), "unit without duration")
	assert.False(t, ValidWarrantyPair(ptr(0), ptr(WarrantyYears)))
	assert.False(t, ValidWarrantyPair(ptr(-1), ptr(WarrantyMonths)))
	assert.False(t, ValidWarrantyPair(ptr(2), ptr("weeks")))
}

func TestDeviceSpecs(t *testing.T) {
	d := Device{
		Storage:   ptr("512 GB SSD"),
		RAM:       ptr("16 GB"),
		Processor: ptr(""),
	}
	specs := d.Specs()
	assert.Equal(t, map[string]string{
		"storage": "512 GB SSD",
		"ram":     "16 GB",
	}, specs, "unset and empty fields stay out")
}

func TestDeviceSnapshot(t *testing.T) {
	d := Device{
		ID:           7,
		DeviceTypeID: 1,
		Brand:        "Dell",
		Model:        "Latitude",
		SerialNumber: "SN-7",
		Available:    true,
		PlateCode:    ptr("IT-0007"),
		RAM:          ptr("16 GB"),
	}
	snap := d.Snapshot()
	assert.Equal(t, int64(7), snap["id"])
	assert.Equal(t, "SN-7", snap["serial_number"])
	assert.Equal(t, "IT-0007", snap["plate_code"])
	assert.Equal(t, "16 GB", snap["ram"])
	assert.NotContains(t, snap, "storage")
}

func TestIsSpecField(t *testing.T) {
	for _, f := range SpecFields {
		assert.True(t, IsSpecField(f), f)
	}
	assert.False(t, IsSpecField("gpu"))
	assert.False(t, IsSpecField(""))
}
