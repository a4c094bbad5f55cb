package model

// Section is a course section a teacher teaches and students enroll in.
type Section struct {
	ID         int64  `json:"int_idSeccion"`
	CourseID   string `json:"str_idCurso,omitempty"`
	CourseName string `json:"str_nombreCurso,omitempty"`
	Number     string `json:"str_numero,omitempty"`
}

// ClassSession is a single scheduled meeting of a section, the unit of
// attendance tracking.  It is created by academic scheduling and only ever
// referenced by this client.
//
// Fields:
//
//	ID        – int_idSesionClase.
//	SectionID – int_idSeccion the session belongs to.
//	Topic     – str_tema, the human label shown in pickers.
//	Date      – dt_fecha as sent by the backend (YYYY-MM-DD).
type ClassSession struct {
	ID        int64  `json:"int_idSesionClase"`
	SectionID int64  `json:"int_idSeccion"`
	Topic     string `json:"str_tema"`
	Date      string `json:"dt_fecha,omitempty"`
}

// RosterEntry is one enrollment of a student in a section.
type RosterEntry struct {
	EnrollmentID int64  `json:"int_idAlumnoSeccion"`
	SectionID    int64  `json:"int_idSeccion"`
	StudentID    string `json:"str_idAlumno"`
	FirstNames   string `json:"str_nombres"`
	LastNames    string `json:"str_apellidos"`
}

// FullName joins names the way the dashboards print them.
func (r RosterEntry) FullName() string {
	switch {
	case r.FirstNames == "":
		return r.LastNames
	case r.LastNames == "":
		return r.FirstNames
	}
	return r.FirstNames + " " + r.LastNames
}
