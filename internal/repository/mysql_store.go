package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// MySQLStore implements Store over the per-table repos.
type MySQLStore struct {
	Accounts   *AccountRepo
	Refresh    *RefreshRepo
	Academic   *AcademicRepo
	Attendance *AttendanceRepo
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		Accounts:   NewAccountRepo(db),
		Refresh:    NewRefreshRepo(db),
		Academic:   NewAcademicRepo(db),
		Attendance: NewAttendanceRepo(db),
	}
}

// Seed inserts d, skipping rows that already exist.
func (s *MySQLStore) Seed(ctx context.Context, d Demo, cost int) error {
	for _, a := range d.Accounts {
		plain := a.PasswordHash
		if plain == "" {
			plain = DemoPassword
		}
		hash, err := utils.HashPassword(plain, cost)
		if err != nil {
			return err
		}
		a.PasswordHash = hash
		if err := s.Accounts.Create(ctx, a); err != nil {
			return err
		}
	}
	for _, cs := range d.Sessions {
		if err := s.Academic.SeedSession(ctx, cs); err != nil {
			return err
		}
	}
	for _, e := range d.Roster {
		if err := s.Academic.SeedEnrollment(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) AccountByEmail(ctx context.Context, email string) (model.Account, error) {
	return s.Accounts.GetByEmail(ctx, email)
}

func (s *MySQLStore) AccountByID(ctx context.Context, id uint64) (model.Account, error) {
	return s.Accounts.GetByID(ctx, id)
}

func (s *MySQLStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return s.Refresh.Store(ctx, userID, tokenHash, exp)
}

func (s *MySQLStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	return s.Refresh.Validate(ctx, tokenHash)
}

func (s *MySQLStore) RevokeRefresh(ctx context.Context, tokenHash string) error {
	return s.Refresh.Revoke(ctx, tokenHash)
}

func (s *MySQLStore) Session(ctx context.Context, id int64) (model.ClassSession, error) {
	return s.Academic.Session(ctx, id)
}

func (s *MySQLStore) SessionsBySection(ctx context.Context, sectionID int64) ([]model.ClassSession, error) {
	return s.Academic.SessionsBySection(ctx, sectionID)
}

func (s *MySQLStore) Roster(ctx context.Context, sectionID int64) ([]model.RosterEntry, error) {
	return s.Academic.Roster(ctx, sectionID)
}

func (s *MySQLStore) Student(ctx context.Context, sectionID int64, studentID string) (model.RosterEntry, error) {
	return s.Academic.Student(ctx, sectionID, studentID)
}

func (s *MySQLStore) RecordAttendance(ctx context.Context, sessionID int64, studentID string, at time.Time) (model.AttendanceRecord, error) {
	return s.Attendance.Record(ctx, sessionID, studentID, at)
}

func (s *MySQLStore) AttendanceBySession(ctx context.Context, sessionID int64) ([]model.AttendanceRecord, error) {
	return s.Attendance.BySession(ctx, sessionID)
}
