package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

type refreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

// MemoryStore keeps everything in process memory.  It backs the development
// server when no database is configured, and the tests.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uint64]model.Account
	refresh  map[string]refreshRow
	sessions map[int64]model.ClassSession
	roster   []model.RosterEntry
	records  []model.AttendanceRecord
	nextID   int64
}

// NewMemoryStore returns a store seeded with d.  Passwords in d are hashed
// with cost.
func NewMemoryStore(d Demo, cost int) (*MemoryStore, error) {
	s := &MemoryStore{
		accounts: map[uint64]model.Account{},
		refresh:  map[string]refreshRow{},
		sessions: map[int64]model.ClassSession{},
		roster:   append([]model.RosterEntry(nil), d.Roster...),
	}
	for _, a := range d.Accounts {
		plain := a.PasswordHash
		if plain == "" {
			plain = DemoPassword
		}
		hash, err := utils.HashPassword(plain, cost)
		if err != nil {
			return nil, err
		}
		a.PasswordHash = hash
		a.Email = strings.ToLower(a.Email)
		a.CreatedAt = time.Now().UTC()
		s.accounts[a.ID] = a
	}
	for _, cs := range d.Sessions {
		s.sessions[cs.ID] = cs
	}
	return s, nil
}

func (s *MemoryStore) AccountByEmail(_ context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, ErrNotFound
}

func (s *MemoryStore) AccountByID(_ context.Context, id uint64) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	s.refresh[tokenHash] = refreshRow{userID: userID, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[tokenHash]
	if !ok || row.revoked || time.Now().UTC().After(row.exp) {
		return 0, ErrNotFound
	}
	return row.userID, nil
}

func (s *MemoryStore) RevokeRefresh(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.refresh[tokenHash]; ok {
		row.revoked = true
		s.refresh[tokenHash] = row
	}
	return nil
}

func (s *MemoryStore) Session(_ context.Context, id int64) (model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return model.ClassSession{}, ErrNotFound
	}
	return cs, nil
}

func (s *MemoryStore) SessionsBySection(_ context.Context, sectionID int64) ([]model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ClassSession{}
	for _, cs := range s.sessions {
		if sectionID == 0 || cs.SectionID == sectionID {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Roster(_ context.Context, sectionID int64) ([]model.RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.RosterEntry{}
	for _, e := range s.roster {
		if e.SectionID == sectionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Student(_ context.Context, sectionID int64, studentID string) (model.RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.roster {
		if e.SectionID == sectionID && e.StudentID == studentID {
			return e, nil
		}
	}
	return model.RosterEntry{}, ErrNotFound
}

func (s *MemoryStore) RecordAttendance(_ context.Context, sessionID int64, studentID string, at time.Time) (model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.SessionID == sessionID && r.StudentID == studentID && r.Present() {
			return model.AttendanceRecord{}, ErrAlreadyRegistered
		}
	}
	s.nextID++
	rec := model.AttendanceRecord{
		ID:        s.nextID,
		SessionID: sessionID,
		StudentID: studentID,
		Status:    model.StatusPresent,
		Date:      at.Format("2006-01-02"),
		Time:      at.Format("15:04:05"),
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *MemoryStore) AttendanceBySession(_ context.Context, sessionID int64) ([]model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.AttendanceRecord{}
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}
