package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// AttendanceRepo persists check-ins.  The unique key on
// (int_idSesionClase, str_idAlumno) makes a second check-in fail.
type AttendanceRepo struct{ DB *sql.DB }

func NewAttendanceRepo(db *sql.DB) *AttendanceRepo { return &AttendanceRepo{DB: db} }

const mysqlDuplicateEntry = 1062

// Record inserts a present record.
func (r *AttendanceRepo) Record(ctx context.Context, sessionID int64, studentID string, at time.Time) (model.AttendanceRecord, error) {
	rec := model.AttendanceRecord{
		SessionID: sessionID,
		StudentID: studentID,
		Status:    model.StatusPresent,
		Date:      at.Format("2006-01-02"),
		Time:      at.Format("15:04:05"),
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO asistencias (int_idSesionClase,str_idAlumno,str_estado,dt_fecha,dt_hora) VALUES (?,?,?,?,?)",
		rec.SessionID, rec.StudentID, rec.Status, rec.Date, rec.Time)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return model.AttendanceRecord{}, ErrAlreadyRegistered
		}
		return model.AttendanceRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.ID = id
	return rec, nil
}

// BySession lists the records of a session in check-in order.
func (r *AttendanceRepo) BySession(ctx context.Context, sessionID int64) ([]model.AttendanceRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT int_idAsistencia,int_idSesionClase,str_idAlumno,str_estado,DATE_FORMAT(dt_fecha,'%Y-%m-%d'),TIME_FORMAT(dt_hora,'%H:%i:%s') "+
			"FROM asistencias WHERE int_idSesionClase=? ORDER BY int_idAsistencia", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AttendanceRecord{}
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.Date, &rec.Time); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
