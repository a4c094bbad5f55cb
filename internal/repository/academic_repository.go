package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// AcademicRepo reads sessions and enrollments.  Scheduling owns these rows;
// the attendance backend never writes them outside of seeding.
type AcademicRepo struct{ DB *sql.DB }

func NewAcademicRepo(db *sql.DB) *AcademicRepo { return &AcademicRepo{DB: db} }

const sessionColumns = "int_idSesionClase,int_idSeccion,str_tema,DATE_FORMAT(dt_fecha,'%Y-%m-%d')"

// Session fetches one class session.
func (r *AcademicRepo) Session(ctx context.Context, id int64) (model.ClassSession, error) {
	var cs model.ClassSession
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sesiones_clase WHERE int_idSesionClase=?", id).
		Scan(&cs.ID, &cs.SectionID, &cs.Topic, &cs.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return cs, ErrNotFound
	}
	return cs, err
}

// SessionsBySection lists the sessions of a section; 0 lists all.
func (r *AcademicRepo) SessionsBySection(ctx context.Context, sectionID int64) ([]model.ClassSession, error) {
	q := "SELECT " + sessionColumns + " FROM sesiones_clase"
	args := []any{}
	if sectionID != 0 {
		q += " WHERE int_idSeccion=?"
		args = append(args, sectionID)
	}
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY int_idSesionClase", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ClassSession{}
	for rows.Next() {
		var cs model.ClassSession
		if err := rows.Scan(&cs.ID, &cs.SectionID, &cs.Topic, &cs.Date); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

const rosterColumns = "int_idAlumnoSeccion,int_idSeccion,str_idAlumno,str_nombres,str_apellidos"

// Roster lists the enrollments of a section.
func (r *AcademicRepo) Roster(ctx context.Context, sectionID int64) ([]model.RosterEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+rosterColumns+" FROM alumnos_secciones WHERE int_idSeccion=? ORDER BY str_apellidos, str_nombres",
		sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RosterEntry{}
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.EnrollmentID, &e.SectionID, &e.StudentID, &e.FirstNames, &e.LastNames); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Student fetches one enrollment.
func (r *AcademicRepo) Student(ctx context.Context, sectionID int64, studentID string) (model.RosterEntry, error) {
	var e model.RosterEntry
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+rosterColumns+" FROM alumnos_secciones WHERE int_idSeccion=? AND str_idAlumno=? LIMIT 1",
		sectionID, studentID).Scan(&e.EnrollmentID, &e.SectionID, &e.StudentID, &e.FirstNames, &e.LastNames)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// SeedSession inserts a session unless it exists.
func (r *AcademicRepo) SeedSession(ctx context.Context, cs model.ClassSession) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO sesiones_clase (int_idSesionClase,int_idSeccion,str_tema,dt_fecha) VALUES (?,?,?,?)",
		cs.ID, cs.SectionID, cs.Topic, cs.Date)
	return err
}

// SeedEnrollment inserts an enrollment unless it exists.
func (r *AcademicRepo) SeedEnrollment(ctx context.Context, e model.RosterEntry) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO alumnos_secciones (int_idAlumnoSeccion,int_idSeccion,str_idAlumno,str_nombres,str_apellidos) VALUES (?,?,?,?,?)",
		e.EnrollmentID, e.SectionID, e.StudentID, e.FirstNames, e.LastNames)
	return err
}
