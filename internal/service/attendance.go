package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/credential"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/queue"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

var (
	// ErrInvalidCredential covers bad signatures, malformed tokens and
	// unknown sessions.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential is a well-formed credential past its window.
	ErrExpiredCredential = errors.New("credential expired")
	// ErrNotEnrolled means the student is not on the section roster.
	ErrNotEnrolled = errors.New("student not enrolled in section")
)

// AttendanceService mints and verifies attendance credentials.
//
// Fields:
//
//	Store     – persistence.
//	Ledger    – consumed (credential, student) pairs.
//	Hub       – live fan-out to teacher views.
//	Publisher – broker announcement of each check-in.
//	Secret    – HMAC key of credentials.
//	TTL       – credential validity window.
//	Now       – clock; time.Now when nil.
type AttendanceService struct {
	Store     repository.Store
	Ledger    repository.Ledger
	Hub       *Hub
	Publisher Publisher
	Secret    string
	TTL       time.Duration
	Now       func() time.Time
	Log       *zap.Logger
}

func (s *AttendanceService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Mint issues a credential for a session and renders it as a PNG data URL.
func (s *AttendanceService) Mint(ctx context.Context, sessionID int64, teacherID string) (model.IssuedCredential, error) {
	if _, err := s.Store.Session(ctx, sessionID); err != nil {
		return model.IssuedCredential{}, err
	}
	now := s.now()
	raw, claims, err := utils.NewCredential(s.Secret, sessionID, teacherID, s.TTL, now)
	if err != nil {
		return model.IssuedCredential{}, err
	}
	img, err := credential.EncodeDataURL(model.Credential(raw), credential.DefaultSize)
	if err != nil {
		return model.IssuedCredential{}, err
	}
	return model.IssuedCredential{
		QRCode:    img,
		Token:     model.Credential(raw),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		IssuedAt:  now,
	}, nil
}

// Verify checks a credential for studentID, records attendance and notifies
// the session's teacher views.  Errors: ErrInvalidCredential,
// ErrExpiredCredential, ErrNotEnrolled, repository.ErrAlreadyRegistered.
func (s *AttendanceService) Verify(ctx context.Context, raw, studentID string) (model.AttendanceRecord, error) {
	log := utils.OrNop(s.Log)
	now := s.now()
	claims, err := utils.ParseCredential(s.Secret, raw, now)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.AttendanceRecord{}, ErrExpiredCredential
		}
		return model.AttendanceRecord{}, ErrInvalidCredential
	}
	session, err := s.Store.Session(ctx, claims.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.AttendanceRecord{}, ErrInvalidCredential
	}
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	student, err := s.Store.Student(ctx, session.SectionID, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.AttendanceRecord{}, ErrNotEnrolled
	}
	if err != nil {
		return model.AttendanceRecord{}, err
	}

	key := claims.ID + ":" + studentID
	fresh, err := s.Ledger.Consume(ctx, key, claims.ExpiresAt.Time.Sub(now))
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if !fresh {
		return model.AttendanceRecord{}, repository.ErrAlreadyRegistered
	}
	rec, err := s.Store.RecordAttendance(ctx, session.ID, studentID, now)
	if err != nil {
		// Only a stored row keeps the pair consumed.
		if !errors.Is(err, repository.ErrAlreadyRegistered) {
			if rerr := s.Ledger.Release(context.WithoutCancel(ctx), key); rerr != nil {
				log.Warn("ledger release failed", zap.String("key", key), zap.Error(rerr))
			}
		}
		return model.AttendanceRecord{}, err
	}

	name := student.FullName()
	n := s.Hub.Broadcast(session.ID, model.VerificationEvent{
		Type:        model.EventQRVerified,
		SessionID:   session.ID,
		StudentID:   studentID,
		StudentName: name,
	})
	log.Info("attendance verified",
		zap.Int64("session_id", session.ID), zap.String("student_id", studentID), zap.Int("notified", n))

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.Publisher.PublishVerified(pubCtx, queue.AttendanceVerifiedEvent{
		AttendanceID: rec.ID,
		SessionID:    session.ID,
		SessionTopic: session.Topic,
		StudentID:    studentID,
		StudentName:  name,
		TeacherID:    claims.TeacherID,
		CredentialID: claims.ID,
		VerifiedAt:   now.UTC().Format(time.RFC3339),
	}); err != nil {
		log.Warn("publish attendance event", zap.Error(err))
	}
	return rec, nil
}
