//go:build integration

package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"device-custody-api/internal/testutil"

	"github.com/tealeg/xlsx/v3"
)

// buildDeviceWorkbook produces an in-memory .xlsx with the given rows
func buildDeviceWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Devices")
	if err != nil {
		t.Fatalf("Failed to add sheet: %v", err)
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadWorkbook(t *testing.T, entity string, dryRun bool, workbook []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("entity", entity); err != nil {
		t.Fatal(err)
	}
	if dryRun {
		if err := mw.WriteField("dry_run", "true"); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", "upload.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(workbook); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("POST", "/imports/excel", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	w := httptest.NewRecorder()
	testServer.Router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func TestImportDevicesWithDuplicateSerial(t *testing.T) {
	testutil.RequireIntegration(t)

	rows := [][]string{
		{"Brand", "Model", "Serial Number", "Device Type", "Storage", "RAM", "Processor"},
	}
	for i := 1; i <= 10; i++ {
		serial := fmt.Sprintf("IMP-SN-%03d", i)
		if i == 3 {
			// row 4 in the sheet repeats row 3's serial
			serial = "IMP-SN-002"
		}
		rows = append(rows, []string{
			"Dell", "Latitude", serial, "laptop", "512 GB SSD", "16 GB", "Intel Core i5-1345U",
		})
	}
	workbook := buildDeviceWorkbook(t, rows)

	w, out := uploadWorkbook(t, "devices", false, workbook)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if got := out["total"].(float64); got != 10 {
		t.Errorf("Expected total 10, got %v", got)
	}
	if got := out["successful"].(float64); got != 9 {
		t.Errorf("Expected 9 successful, got %v", got)
	}
	if got := out["failed"].(float64); got != 1 {
		t.Errorf("Expected 1 failed, got %v", got)
	}

	errs := out["errors"].([]interface{})
	if len(errs) != 1 {
		t.Fatalf("Expected 1 row error, got %d", len(errs))
	}
	first := errs[0].(map[string]interface{})
	if first["row"].(float64) != 4 {
		t.Errorf("Expected failure at sheet row 4, got %v", first["row"])
	}

	// Every inserted row leaves a create audit entry attributed to the
	// importing admin; the failed row leaves none.
	var auditCount int
	err := testDB.QueryRow(`
		SELECT COUNT(*)
		FROM audit_entries a
		JOIN devices d ON d.id = a.entity_id
		WHERE a.entity_type = 'device' AND a.action = 'create' AND a.user_id = 1
		  AND d.serial_number LIKE 'IMP-SN-%'`).Scan(&auditCount)
	if err != nil {
		t.Fatal(err)
	}
	if auditCount != 9 {
		t.Errorf("Expected 9 audit entries for imported devices, got %d", auditCount)
	}
}

func TestImportDevicesDryRunWritesNothing(t *testing.T) {
	testutil.RequireIntegration(t)

	rows := [][]string{
		{"Brand", "Model", "Serial Number", "Device Type", "Storage", "RAM", "Processor"},
		{"HP", "EliteBook", "DRY-SN-001", "laptop", "1 TB NVMe", "32 GB", "Intel Core i7-1365U"},
		{"HP", "EliteBook", "DRY-SN-002", "badtype", "1 TB NVMe", "32 GB", "Intel Core i7-1365U"},
	}
	workbook := buildDeviceWorkbook(t, rows)

	w, out := uploadWorkbook(t, "devices", true, workbook)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if out["dry_run"] != true {
		t.Error("Expected dry_run true in summary")
	}
	if got := out["successful"].(float64); got != 1 {
		t.Errorf("Expected 1 successful, got %v", got)
	}
	if got := out["failed"].(float64); got != 1 {
		t.Errorf("Expected 1 failed (unknown device type), got %v", got)
	}

	var count int
	if err := testDB.QueryRow(`SELECT COUNT(*) FROM devices WHERE serial_number LIKE 'DRY-SN-%'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Dry run must not insert rows, found %d", count)
	}

	var auditCount int
	if err := testDB.QueryRow(`
		SELECT COUNT(*) FROM audit_entries
		WHERE entity_type = 'device' AND description LIKE '%DRY-SN-%'`).Scan(&auditCount); err != nil {
		t.Fatal(err)
	}
	if auditCount != 0 {
		t.Errorf("Dry run must not write audit entries, found %d", auditCount)
	}
}

func TestImportUsers(t *testing.T) {
	testutil.RequireIntegration(t)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Users")
	if err != nil {
		t.Fatal(err)
	}
	for _, cells := range [][]string{
		{"Email", "Name", "Role", "Password"},
		{"imported1@example.com", "Imported One", "employee", "longenough1"},
		{"imported2@example.com", "Imported Two", "", "longenough2"},
		{"admin@example.com", "Duplicate Admin", "admin", "longenough3"},
	} {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	w, out := uploadWorkbook(t, "users", false, buf.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := out["successful"].(float64); got != 2 {
		t.Errorf("Expected 2 successful, got %v", got)
	}
	if got := out["failed"].(float64); got != 1 {
		t.Errorf("Expected 1 failed (existing email), got %v", got)
	}

	// Imported users can log in
	var resp struct {
		Token string `json:"token"`
	}
	lw := doJSON(t, "POST", "/auth/login", "", map[string]string{
		"email":    "imported1@example.com",
		"password": "longenough1",
	}, &resp)
	if lw.Code != http.StatusOK {
		t.Errorf("Expected imported user to log in, got %d: %s", lw.Code, lw.Body.String())
	}

	var auditCount int
	err = testDB.QueryRow(`
		SELECT COUNT(*)
		FROM audit_entries a
		JOIN users u ON u.id = a.entity_id
		WHERE a.entity_type = 'user' AND a.action = 'create' AND a.user_id = 1
		  AND u.email LIKE 'imported%@example.com'`).Scan(&auditCount)
	if err != nil {
		t.Fatal(err)
	}
	if auditCount != 2 {
		t.Errorf("Expected 2 audit entries for imported users, got %d", auditCount)
	}
}
