package internal

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

type summaryReport struct {
	TotalDevices      int     `json:"total_devices"`
	AvailableDevices  int     `json:"available_devices"`
	AssignedDevices   int     `json:"assigned_devices"`
	RetiredDevices    int     `json:"retired_devices"`
	DisposedDevices   int     `json:"disposed_devices"`
	ActiveAssignments int     `json:"active_assignments"`
	TotalUsers        int     `json:"total_users"`
	Utilization       float64 `json:"utilization"`
}

// getSummaryReport returns fleet-wide counts and the utilization ratio
// (devices in someone's hands over devices not retired or disposed).
func (s *Server) getSummaryReport(w http.ResponseWriter, r *http.Request) {
	var rep summaryReport
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM devices),
			(SELECT COUNT(*) FROM devices d
			 WHERE d.available),
			(SELECT COUNT(*) FROM assignments WHERE active),
			(SELECT COUNT(*) FROM retirements WHERE status = 'retired'),
			(SELECT COUNT(*) FROM retirements WHERE status = 'disposed'),
			(SELECT COUNT(*) FROM users WHERE is_active)`,
	).Scan(&rep.TotalDevices, &rep.AvailableDevices, &rep.ActiveAssignments,
		&rep.RetiredDevices, &rep.DisposedDevices, &rep.TotalUsers)
	if err != nil {
		writeOpError(w, err)
		return
	}

	rep.AssignedDevices = rep.ActiveAssignments
	if inService := rep.TotalDevices - rep.RetiredDevices - rep.DisposedDevices; inService > 0 {
		rep.Utilization = float64(rep.AssignedDevices) / float64(inService)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type topDevice struct {
	DeviceID     int64  `json:"device_id"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	Assignments  int    `json:"assignments"`
}

type topUser struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Assignments int    `json:"assignments"`
}

type topReport struct {
	Devices []topDevice `json:"devices"`
	Users   []topUser   `json:"users"`
}

// getTopReport returns the most-assigned devices and most-active holders,
// ranked by assignment count over the whole ledger.
func (s *Server) getTopReport(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	rep := topReport{Devices: []topDevice{}, Users: []topUser{}}

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT d.id, d.brand, d.model, d.serial_number, COUNT(a.id) AS assignments
		FROM devices d
		JOIN assignments a ON a.device_id = d.id
		GROUP BY d.id, d.brand, d.model, d.serial_number
		ORDER BY assignments DESC, d.id ASC
		LIMIT $1`, limit)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var t topDevice
		if err := rows.Scan(&t.DeviceID, &t.Brand, &t.Model, &t.SerialNumber, &t.Assignments); err != nil {
			writeOpError(w, err)
			return
		}
		rep.Devices = append(rep.Devices, t)
	}
	if err := rows.Err(); err != nil {
		writeOpError(w, err)
		return
	}

	userRows, err := s.DB.QueryContext(r.Context(), `
		SELECT u.id, u.name, u.email, COUNT(a.id) AS assignments
		FROM users u
		JOIN assignments a ON a.user_id = u.id
		GROUP BY u.id, u.name, u.email
		ORDER BY assignments DESC, u.id ASC
		LIMIT $1`, limit)
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer userRows.Close()
	for userRows.Next() {
		var t topUser
		if err := userRows.Scan(&t.UserID, &t.Name, &t.Email, &t.Assignments); err != nil {
			writeOpError(w, err)
			return
		}
		rep.Users = append(rep.Users, t)
	}
	if err := userRows.Err(); err != nil {
		writeOpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
