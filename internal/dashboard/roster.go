package dashboard

import "github.com/iliyamo/qr-attendance/internal/model"

// Row is one line of the attendance table.
type Row struct {
	StudentID string
	Name      string
	Present   bool
	Status    string
	Time      string
}

// Join lays the session's records over the section roster.  Every enrolled
// student gets a row, Presente when a present record exists and Ausente
// otherwise; records of students missing from the roster are appended.
func Join(roster []model.RosterEntry, records []model.AttendanceRecord) []Row {
	byStudent := make(map[string]model.AttendanceRecord, len(records))
	for _, r := range records {
		if prev, ok := byStudent[r.StudentID]; ok && prev.Present() {
			continue
		}
		byStudent[r.StudentID] = r
	}
	rows := make([]Row, 0, len(roster)+len(records))
	seen := make(map[string]bool, len(roster))
	for _, e := range roster {
		seen[e.StudentID] = true
		rec, ok := byStudent[e.StudentID]
		present := ok && rec.Present()
		rows = append(rows, Row{
			StudentID: e.StudentID,
			Name:      e.FullName(),
			Present:   present,
			Status:    model.StatusLabel(present),
			Time:      rec.Time,
		})
	}
	for _, r := range records {
		if seen[r.StudentID] {
			continue
		}
		seen[r.StudentID] = true
		rec := byStudent[r.StudentID]
		rows = append(rows, Row{
			StudentID: r.StudentID,
			Name:      r.StudentID,
			Present:   rec.Present(),
			Status:    model.StatusLabel(rec.Present()),
			Time:      rec.Time,
		})
	}
	return rows
}

// PresentCount counts present rows.
func PresentCount(rows []Row) int {
	n := 0
	for _, r := range rows {
		if r.Present {
			n++
		}
	}
	return n
}
