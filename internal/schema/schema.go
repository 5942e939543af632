// Package schema validates device specification fields against the fixed
// per-field format rules. It is pure: the set of rules is keyed by field name
// and never depends on the device type beyond which fields the type requires.
package schema

import (
	"regexp"
	"strings"
)

// fieldOrder fixes the order fields are validated and reported in
var fieldOrder = []string{"storage", "ram", "processor", "dvr_storage"}

// FieldError describes a single failed specification field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

var (
	storageRe    = regexp.MustCompile(`^\d+\s*(GB|TB)(\s*(SSD|HDD|NVMe|eMMC))?$`)
	dvrStorageRe = regexp.MustCompile(`^\d+\s*(GB|TB)$`)
	ramRe        = regexp.MustCompile(`^\d+\s*GB\s*(DDR[3-5]|LPDDR[3-5])?$`)
)

const minProcessorLen = 5

// Validate checks a single specification value against the rule for its field
// name. Unknown field names are rejected.
func Validate(field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case "storage":
		if !storageRe.MatchString(value) {
			return FieldError{Field: field, Message: `must look like "256GB SSD" or "1TB" (GB/TB, optional SSD/HDD/NVMe/eMMC)`}
		}
	case "dvr_storage":
		if !dvrStorageRe.MatchString(value) {
			return FieldError{Field: field, Message: `must look like "2TB" or "500GB"`}
		}
	case "ram":
		if !ramRe.MatchString(value) {
			return FieldError{Field: field, Message: `must look like "8GB" or "16GB DDR4"`}
		}
	case "processor":
		if len(value) < minProcessorLen || !strings.Contains(value, " ") {
			return FieldError{Field: field, Message: "must name brand and model, e.g. \"Intel i5-1135G7\""}
		}
	default:
		return FieldError{Field: field, Message: "unknown specification field"}
	}
	return nil
}

// ValidateSpecs checks a full specification map against a type's required
// field set. Every failing field is reported, not just the first: required
// fields that are missing or malformed, and supplied fields the type does not
// allow.
func ValidateSpecs(required []string, specs map[string]string) []FieldError {
	var errs []FieldError
	allowed := map[string]bool{}
	for _, f := range required {
		allowed[f] = true
		v, ok := specs[f]
		if !ok || strings.TrimSpace(v) == "" {
			errs = append(errs, FieldError{Field: f, Message: "required for this device type"})
			continue
		}
		if err := Validate(f, v); err != nil {
			errs = append(errs, err.(FieldError))
		}
	}
	for _, f := range fieldOrder {
		if _, ok := specs[f]; ok && !allowed[f] {
			errs = append(errs, FieldError{Field: f, Message: "not allowed for this device type"})
		}
	}
	for f := range specs {
		if !isKnownField(f) {
			errs = append(errs, FieldError{Field: f, Message: "unknown specification field"})
		}
	}
	return errs
}

func isKnownField(name string) bool {
	for _, f := range fieldOrder {
		if f == name {
			return true
		}
	}
	return false
}
