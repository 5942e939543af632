package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v3"
)

func buildSheet(t *testing.T, rows [][]string) *xlsx.Sheet {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	return sheet
}

func TestParseDeviceSheet(t *testing.T) {
	sheet := buildSheet(t, [][]string{
		{"Brand", "Model", "Serial Number", "Device Type", "Storage", "RAM", "Purchase Date"},
		{"Dell", "Latitude 5440", "SN-001", "laptop", "512 GB SSD", "16 GB DDR5", "2024-03-15"},
		{"HP", "EliteBook 840", "SN-002", "laptop", "1 TB NVMe", "32 GB", ""},
	})

	rows, errs := ParseDeviceSheet(sheet, DefaultMapping())
	require.Empty(t, errs)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Row)
	assert.Equal(t, "Dell", rows[0].Brand)
	assert.Equal(t, "SN-001", rows[0].SerialNumber)
	assert.Equal(t, "laptop", rows[0].DeviceType)
	assert.Equal(t, "512 GB SSD", rows[0].Specs["storage"])
	assert.Equal(t, "16 GB DDR5", rows[0].Specs["ram"])
	require.NotNil(t, rows[0].PurchaseDate)
	assert.Equal(t, "2024-03-15", rows[0].PurchaseDate.Format("2006-01-02"))

	assert.Nil(t, rows[1].PurchaseDate)
}

func TestParseDeviceSheetAliases(t *testing.T) {
	sheet := buildSheet(t, [][]string{
		{"Manufacturer", "Model", "S/N", "Type", "CPU"},
		{"Lenovo", "ThinkPad T14", "SN-100", "laptop", "Intel Core i7-1355U"},
	})

	rows, errs := ParseDeviceSheet(sheet, DefaultMapping())
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, "Lenovo", rows[0].Brand)
	assert.Equal(t, "SN-100", rows[0].SerialNumber)
	assert.Equal(t, "Intel Core i7-1355U", rows[0].Specs["processor"])
}

func TestParseDeviceSheetRowErrors(t *testing.T) {
	sheet := buildSheet(t, [][]string{
		{"Brand", "Model", "Serial Number", "Device Type", "Purchase Date"},
		{"Dell", "Latitude", "SN-001", "laptop", ""},
		{"", "EliteBook", "SN-002", "laptop", ""},
		{"HP", "ProBook", "SN-003", "laptop", "not-a-date"},
		{"Acer", "Aspire", "SN-004", "laptop", ""},
	})

	rows, errs := ParseDeviceSheet(sheet, DefaultMapping())
	require.Len(t, rows, 2, "good rows keep flowing past bad ones")
	require.Len(t, errs, 2)

	assert.Equal(t, 3, errs[0].Row)
	assert.Contains(t, errs[0].Message, "brand")
	assert.Equal(t, 4, errs[1].Row)
	assert.Contains(t, errs[1].Message, "invalid date")
}

func TestParseDeviceSheetUnknownHeader(t *testing.T) {
	sheet := buildSheet(t, [][]string{
		{"Foo", "Bar"},
		{"x", "y"},
	})

	rows, errs := ParseDeviceSheet(sheet, DefaultMapping())
	assert.Empty(t, rows)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Row)
}

func TestParseUserSheet(t *testing.T) {
	sheet := buildSheet(t, [][]string{
		{"Email", "Name", "Role", "Password"},
		{"Alice@Example.com", "Alice Kaya", "admin", "supersecret1"},
		{"bob@example.com", "Bob Demir", "", "anothersecret"},
		{"no-at-sign", "Carol", "employee", "longenough1"},
		{"dan@example.com", "Dan", "manager", "longenough1"},
		{"eve@example.com", "Eve", "employee", "short"},
	})

	rows, errs := ParseUserSheet(sheet, DefaultMapping())
	require.Len(t, rows, 2)
	require.Len(t, errs, 3)

	assert.Equal(t, "alice@example.com", rows[0].Email, "emails are lowercased")
	assert.Equal(t, "admin", rows[0].Role)
	assert.Equal(t, "employee", rows[1].Role, "role defaults to employee")

	assert.Contains(t, errs[0].Message, "valid email")
	assert.Contains(t, errs[1].Message, "admin or employee")
	assert.Contains(t, errs[2].Message, "at least 8 characters")
}

func TestLoadMapping(t *testing.T) {
	yamlDoc := `
version: 1
aliases:
  serial_number: ["Seri No"]
  brand: ["Marka"]
  model: ["Model"]
  device_type: ["Tur"]
`
	m, err := LoadMapping(strings.NewReader(yamlDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, []string{"Seri No"}, m.Aliases["serial_number"])

	sheet := buildSheet(t, [][]string{
		{"Marka", "Model", "Seri No", "Tur"},
		{"Dell", "Latitude", "SN-200", "laptop"},
	})
	rows, errs := ParseDeviceSheet(sheet, m)
	require.Empty(t, errs)
	require.Len(t, rows, 1)
	assert.Equal(t, "SN-200", rows[0].SerialNumber)
}

func TestLoadMappingBadYAML(t *testing.T) {
	_, err := LoadMapping(strings.NewReader("aliases: [not a map"))
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-03-15", "03/15/2024", "15.03.2024"} {
		got, err := parseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2024-03-15", got.Format("2006-01-02"), in)
	}

	got, err := parseDate("45366")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got.Format("2006-01-02"), "excel serial date")

	_, err = parseDate("yesterday")
	assert.Error(t, err)
}
