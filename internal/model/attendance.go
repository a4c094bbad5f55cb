package model

// Attendance status codes as stored in str_estado.
const (
	StatusPresent = "P"
	StatusAbsent  = "A"
)

// AttendanceRecord is produced server-side when a credential is verified.  The
// client never constructs one; it submits a credential and a student identity
// and receives a record or an error.
//
// Fields:
//
//	ID        – int_idAsistencia.
//	SessionID – int_idSesionClase the record belongs to.
//	StudentID – str_idAlumno of the checked-in student.
//	Status    – StatusPresent or StatusAbsent.
//	Date      – dt_fecha of the check-in.
//	Time      – dt_hora of the check-in.
type AttendanceRecord struct {
	ID        int64  `json:"int_idAsistencia"`
	SessionID int64  `json:"int_idSesionClase"`
	StudentID string `json:"str_idAlumno"`
	Status    string `json:"str_estado"`
	Date      string `json:"dt_fecha,omitempty"`
	Time      string `json:"dt_hora,omitempty"`
}

// Present reports whether the record marks the student as present.
func (r AttendanceRecord) Present() bool { return r.Status == StatusPresent }

// StatusLabel renders the status the way the dashboards show it.
func StatusLabel(present bool) string {
	if present {
		return "Presente"
	}
	return "Ausente"
}
