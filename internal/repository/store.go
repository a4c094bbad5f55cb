package repository

import (
	"context"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// Store is everything the backend persists.  MySQLStore and MemoryStore
// implement it.
type Store interface {
	AccountByEmail(ctx context.Context, email string) (model.Account, error)
	AccountByID(ctx context.Context, id uint64) (model.Account, error)

	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeRefresh(ctx context.Context, tokenHash string) error

	Session(ctx context.Context, id int64) (model.ClassSession, error)
	SessionsBySection(ctx context.Context, sectionID int64) ([]model.ClassSession, error)
	Roster(ctx context.Context, sectionID int64) ([]model.RosterEntry, error)
	// Student returns the roster entry of studentID in sectionID.
	Student(ctx context.Context, sectionID int64, studentID string) (model.RosterEntry, error)

	// RecordAttendance stores a present record.  ErrAlreadyRegistered when
	// the student is already present for the session.
	RecordAttendance(ctx context.Context, sessionID int64, studentID string, at time.Time) (model.AttendanceRecord, error)
	AttendanceBySession(ctx context.Context, sessionID int64) ([]model.AttendanceRecord, error)
}

// Demo is the seed data loaded into an empty store.
//
// Fields:
//
//	Accounts – login users; PasswordHash holds the plain password until
//	           seeding hashes it.
//	Sessions – class sessions.
//	Roster   – enrollments.
type Demo struct {
	Accounts []model.Account
	Sessions []model.ClassSession
	Roster   []model.RosterEntry
}

// DemoPassword is the password of every seeded account.
const DemoPassword = "asistencia123"

// DemoData returns one teacher, three students in one section and three
// sessions of it.
func DemoData() Demo {
	return Demo{
		Accounts: []model.Account{
			{ID: 1, Email: "docente@uni.edu", Role: model.RoleTeacher, TeacherID: "DOC-001"},
			{ID: 2, Email: "ana@uni.edu", Role: model.RoleStudent, StudentID: "ALU-001"},
			{ID: 3, Email: "beto@uni.edu", Role: model.RoleStudent, StudentID: "ALU-002"},
			{ID: 4, Email: "carla@uni.edu", Role: model.RoleStudent, StudentID: "ALU-003"},
		},
		Sessions: []model.ClassSession{
			{ID: 1, SectionID: 1, Topic: "Lecture 4", Date: "2026-10-12"},
			{ID: 2, SectionID: 1, Topic: "Lecture 5", Date: "2026-10-19"},
			{ID: 3, SectionID: 1, Topic: "Lecture 6", Date: "2026-10-26"},
		},
		Roster: []model.RosterEntry{
			{EnrollmentID: 1, SectionID: 1, StudentID: "ALU-001", FirstNames: "Ana", LastNames: "Ríos"},
			{EnrollmentID: 2, SectionID: 1, StudentID: "ALU-002", FirstNames: "Beto", LastNames: "Soto"},
			{EnrollmentID: 3, SectionID: 1, StudentID: "ALU-003", FirstNames: "Carla", LastNames: "Vega"},
		},
	}
}
