package checkin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// ErrBusy is returned when a submission is already in flight or the flow is
// confirmed.
var ErrBusy = errors.New("checkin: submission in progress")

// Phase is the student check-in state.
type Phase int

const (
	PhaseScanning Phase = iota
	PhaseSubmitting
	PhaseConfirmed
	PhaseFailed
)

func (p Phase) String() string {
	return [...]string{"scanning", "submitting", "confirmed", "failed"}[p]
}

// DashboardRoute is where a confirmed check-in leads.
const DashboardRoute = "/alumno/dashboard"

// Submitter is what Flow needs from Service.
type Submitter interface {
	Submit(ctx context.Context, cred model.Credential, studentID string) (model.AttendanceRecord, error)
}

// Flow is one student check-in screen.  A confirmed submission navigates to
// the dashboard after RedirectDelay; a failed one keeps the message until the
// user scans again.
type Flow struct {
	svc       Submitter
	studentID string
	delay     time.Duration
	navigate  func(string)

	mu      sync.Mutex
	phase   Phase
	message string
	record  model.AttendanceRecord
	timer   *time.Timer
	closed  bool
}

// NewFlow builds a check-in flow for studentID.  navigate may be nil.
func NewFlow(svc Submitter, studentID string, redirectDelay time.Duration, navigate func(string)) *Flow {
	return &Flow{svc: svc, studentID: studentID, delay: redirectDelay, navigate: navigate}
}

// Submit sends cred.  It is accepted while scanning or after a failure.
func (f *Flow) Submit(ctx context.Context, cred model.Credential) (model.AttendanceRecord, error) {
	f.mu.Lock()
	if f.closed || f.phase == PhaseSubmitting || f.phase == PhaseConfirmed {
		f.mu.Unlock()
		return model.AttendanceRecord{}, ErrBusy
	}
	f.phase, f.message = PhaseSubmitting, ""
	f.mu.Unlock()

	rec, err := f.svc.Submit(ctx, cred, f.studentID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.phase, f.message = PhaseFailed, err.Error()
		return model.AttendanceRecord{}, err
	}
	f.phase, f.message, f.record = PhaseConfirmed, SuccessMessage, rec
	if !f.closed && f.navigate != nil {
		nav := f.navigate
		f.timer = time.AfterFunc(f.delay, func() { nav(DashboardRoute) })
	}
	return rec, nil
}

// Retry returns a failed flow to scanning.
func (f *Flow) Retry() {
	f.mu.Lock()
	if f.phase == PhaseFailed {
		f.phase, f.message = PhaseScanning, ""
	}
	f.mu.Unlock()
}

// Status returns the phase and the message to display.
func (f *Flow) Status() (Phase, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase, f.message
}

// Record returns the confirmed record.
func (f *Flow) Record() model.AttendanceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record
}

// Close cancels a pending redirect.  The screen was left some other way.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
