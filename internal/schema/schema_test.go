package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStorage(t *testing.T) {
	valid := []string{"256GB SSD", "1TB", "512 GB NVMe", "500GB HDD", "64GB eMMC", "2 TB"}
	for _, v := range valid {
		assert.NoError(t, Validate("storage", v), v)
	}

	invalid := []string{"256 Gigs", "SSD 256GB", "GB", "256MB", "", "1PB"}
	for _, v := range invalid {
		assert.Error(t, Validate("storage", v), v)
	}
}

func TestValidateDVRStorage(t *testing.T) {
	assert.NoError(t, Validate("dvr_storage", "2TB"))
	assert.NoError(t, Validate("dvr_storage", "500 GB"))

	// Drive-type suffix is not part of the dvr_storage rule
	assert.Error(t, Validate("dvr_storage", "2TB SSD"))
	assert.Error(t, Validate("dvr_storage", "two terabytes"))
}

func TestValidateRAM(t *testing.T) {
	valid := []string{"8GB", "16GB DDR4", "32 GB DDR5", "8GB LPDDR4", "4 GB LPDDR3"}
	for _, v := range valid {
		assert.NoError(t, Validate("ram", v), v)
	}

	invalid := []string{"8TB", "DDR4 16GB", "8GB DDR6", "8GB LPDDR2", "lots"}
	for _, v := range invalid {
		assert.Error(t, Validate("ram", v), v)
	}
}

func TestValidateProcessor(t *testing.T) {
	assert.NoError(t, Validate("processor", "Intel i5-1135G7"))
	assert.NoError(t, Validate("processor", "AMD Ryzen 5"))

	// needs brand + model, at least five characters and a space
	assert.Error(t, Validate("processor", "i5"))
	assert.Error(t, Validate("processor", "Intel"))
	assert.Error(t, Validate("processor", ""))
}

func TestValidateUnknownField(t *testing.T) {
	assert.Error(t, Validate("gpu", "RTX 4070"))
}

func TestValidateSpecsReportsEveryFailure(t *testing.T) {
	errs := ValidateSpecs([]string{"storage", "ram"}, map[string]string{
		"storage": "256 Gigs",
	})
	require.Len(t, errs, 2)

	fields := []string{errs[0].Field, errs[1].Field}
	assert.Contains(t, fields, "storage")
	assert.Contains(t, fields, "ram")
}

func TestValidateSpecsHappyPath(t *testing.T) {
	errs := ValidateSpecs([]string{"storage", "ram"}, map[string]string{
		"storage": "256GB SSD",
		"ram":     "8GB DDR4",
	})
	assert.Empty(t, errs)
}

func TestValidateSpecsRejectsFieldsOutsideTheType(t *testing.T) {
	errs := ValidateSpecs([]string{"processor"}, map[string]string{
		"processor":   "Intel i7-1260P",
		"dvr_storage": "2TB",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "dvr_storage", errs[0].Field)
}

func TestValidateSpecsEmptyRequirement(t *testing.T) {
	assert.Empty(t, ValidateSpecs(nil, nil))
}
