// Package checkin submits scanned credentials and drives the student-side
// confirmation flow.
package checkin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/api"
	"github.com/iliyamo/qr-attendance/internal/auth"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// User-facing texts.
const (
	SuccessMessage        = "Asistencia registrada correctamente. Redirigiendo al dashboard..."
	DefaultFailureMessage = "Error al registrar asistencia. El código QR puede haber expirado."
	InvalidInputMessage   = "Parámetros inválidos para verificar código QR"
	SessionEndedMessage   = "Su sesión ha expirado. Inicie sesión nuevamente."
)

// Kind classifies a failed submission.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredential
	KindExpired
	KindAlreadyRegistered
	KindNetwork
	KindSessionEnded
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindExpired:
		return "expired"
	case KindAlreadyRegistered:
		return "already_registered"
	case KindNetwork:
		return "network"
	case KindSessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}

// Error is a failed submission.  Message is shown to the user as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Verifier is the verify endpoint.
type Verifier interface {
	VerifyCredential(ctx context.Context, cred model.Credential, studentID string) (model.AttendanceRecord, error)
}

// Service submits credentials and classifies the outcome.
type Service struct {
	v   Verifier
	log *zap.Logger
}

func NewService(v Verifier, log *zap.Logger) *Service {
	return &Service{v: v, log: utils.OrNop(log)}
}

// Submit verifies cred for studentID.  Failures are always *Error.  The
// client never judges a credential itself: possession of one says nothing
// about whether the server will still accept it.
func (s *Service) Submit(ctx context.Context, cred model.Credential, studentID string) (model.AttendanceRecord, error) {
	if strings.TrimSpace(cred.String()) == "" || studentID == "" {
		return model.AttendanceRecord{}, &Error{Kind: KindInvalidCredential, Message: InvalidInputMessage}
	}
	rec, err := s.v.VerifyCredential(ctx, cred, studentID)
	if err != nil {
		ce := classify(err)
		s.log.Info("check-in rejected", zap.String("kind", ce.Kind.String()), zap.String("student", studentID), zap.Error(err))
		return model.AttendanceRecord{}, ce
	}
	s.log.Info("check-in registered", zap.Int64("attendance_id", rec.ID), zap.Int64("session_id", rec.SessionID))
	return rec, nil
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, auth.ErrRefreshFailed):
		return &Error{Kind: KindSessionEnded, Message: SessionEndedMessage, Err: err}
	case api.IsNetwork(err):
		return &Error{Kind: KindNetwork, Message: api.MsgUnreachable, Err: err}
	}
	ae, ok := api.AsAPIError(err)
	if !ok {
		return &Error{Kind: KindUnknown, Message: DefaultFailureMessage, Err: err}
	}
	msg := ae.Message
	if msg == "" {
		msg = DefaultFailureMessage
	}
	return &Error{Kind: kindOf(ae), Message: msg, Err: err}
}

// kindOf prefers the machine code, then the status, then the wording.
func kindOf(ae *api.APIError) Kind {
	switch strings.ToLower(ae.Code) {
	case "expired", "token_expired", "qr_expired":
		return KindExpired
	case "already_registered", "duplicate", "already_used":
		return KindAlreadyRegistered
	case "invalid", "invalid_token", "malformed":
		return KindInvalidCredential
	}
	switch ae.Status {
	case http.StatusConflict:
		return KindAlreadyRegistered
	case http.StatusGone:
		return KindExpired
	}
	text := strings.ToLower(ae.Message)
	switch {
	case strings.Contains(text, "expir"):
		return KindExpired
	case strings.Contains(text, "ya registr"), strings.Contains(text, "already"):
		return KindAlreadyRegistered
	}
	if ae.Status == http.StatusBadRequest || ae.Status == http.StatusUnprocessableEntity {
		return KindInvalidCredential
	}
	return KindUnknown
}
