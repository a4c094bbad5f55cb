// Package dashboard is the controller behind the teacher's session view.  It
// owns the live channel of the selected session, keeps the attendance table
// in sync with the server and runs the QR issuance loop.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/issuance"
	"github.com/iliyamo/qr-attendance/internal/live"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// API is the read side of the backend used by the dashboard.
type API interface {
	ListAttendance(ctx context.Context, sessionID int64) ([]model.AttendanceRecord, error)
	ListRoster(ctx context.Context, sectionID int64) ([]model.RosterEntry, error)
}

// Channel is an open live subscription.
type Channel interface {
	SessionID() int64
	HeartbeatRunning() bool
	Close() error
}

// Dialer opens the live channel of a session.
type Dialer func(ctx context.Context, sessionID int64, h live.Handler) (Channel, error)

// LiveDialer adapts live.Dial.
func LiveDialer(opts live.Options) Dialer {
	return func(ctx context.Context, sessionID int64, h live.Handler) (Channel, error) {
		return live.Dial(ctx, sessionID, h, opts)
	}
}

// NoticeKind classifies a notice.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

// Notice is a transient message for the teacher.
type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

// View is the rendered state of the dashboard.
type View struct {
	Session model.ClassSession
	Rows    []Row
	Loading bool
	Err     error
	Live    bool
	Updated time.Time
}

// Options configures a Dashboard.
type Options struct {
	// Issuance is the QR loop; nil disables OpenQR.
	Issuance *issuance.Loop
	OnChange func(View)
	OnNotice func(Notice)
	Logger   *zap.Logger
}

const maxNotices = 50

// dialTimeout bounds opening the live channel when the caller sets no deadline.
const dialTimeout = 10 * time.Second

// Dashboard holds at most one live channel.  Selecting a session closes the
// previous channel (and its heartbeat) before dialing the next one, and every
// fetch is tagged with the selection it was issued for so a late response
// for an old session is dropped.
type Dashboard struct {
	api      API
	dial     Dialer
	loop     *issuance.Loop
	onChange func(View)
	onNotice func(Notice)
	log      *zap.Logger

	switchMu sync.Mutex // serializes SelectSession/ClearSelection/Close

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	channel Channel
	view    View
	notices []Notice
	closed  bool
}

// New builds a dashboard with nothing selected.
func New(api API, dial Dialer, opts Options) *Dashboard {
	return &Dashboard{
		api:      api,
		dial:     dial,
		loop:     opts.Issuance,
		onChange: opts.OnChange,
		onNotice: opts.OnNotice,
		log:      utils.OrNop(opts.Logger),
	}
}

// SelectSession switches the view to s.  The previous channel is closed
// first; the new channel is opened and the table fetched in the background.
// A failure to open the channel is a notice, not an error: the table still
// works without live updates.
func (d *Dashboard) SelectSession(ctx context.Context, s model.ClassSession) error {
	if s.ID == 0 {
		return issuance.ErrNoSession
	}
	d.switchMu.Lock()
	defer d.switchMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dashboard: closed")
	}
	d.mu.Unlock()

	d.teardown()

	d.mu.Lock()
	d.seq++
	seq := d.seq
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.view = View{Session: s, Loading: true}
	view := d.view
	d.mu.Unlock()
	d.emit(view)

	// The dial follows the caller's ctx; sctx only scopes the handler and fetches.
	dctx, dcancel := context.WithTimeout(ctx, dialTimeout)
	ch, err := d.dial(dctx, s.ID, d.handler(sctx, seq))
	dcancel()
	if err != nil {
		d.log.Warn("live channel unavailable", zap.Int64("session_id", s.ID), zap.Error(err))
		d.notify(NoticeError, "No se pudo conectar a las actualizaciones en vivo: "+err.Error())
	} else {
		d.mu.Lock()
		d.channel = ch
		d.view.Live = true
		d.mu.Unlock()
	}

	go d.fetch(sctx, seq, s)
	return nil
}

// ClearSelection closes the channel and the QR loop and empties the view.
func (d *Dashboard) ClearSelection() {
	d.switchMu.Lock()
	defer d.switchMu.Unlock()
	d.teardown()
	d.mu.Lock()
	d.seq++
	d.view = View{}
	view := d.view
	d.mu.Unlock()
	d.emit(view)
}

// Close releases everything.  Safe to call more than once.
func (d *Dashboard) Close() {
	d.switchMu.Lock()
	defer d.switchMu.Unlock()
	d.teardown()
	d.mu.Lock()
	d.closed = true
	d.seq++
	d.mu.Unlock()
}

// teardown stops the QR loop, cancels pending fetches and closes the live
// channel, waiting for its heartbeat to exit.
func (d *Dashboard) teardown() {
	if d.loop != nil {
		d.loop.Close()
	}
	d.mu.Lock()
	ch, cancel := d.channel, d.cancel
	d.channel, d.cancel = nil, nil
	d.view.Live = false
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			d.log.Debug("close live channel", zap.Error(err))
		}
	}
}

// Refresh re-reads the table of the selected session and waits for it.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	seq, s := d.seq, d.view.Session
	d.mu.Unlock()
	if s.ID == 0 {
		return issuance.ErrNoSession
	}
	return d.fetch(ctx, seq, s)
}

// OpenQR starts the issuance loop for the selected session.
func (d *Dashboard) OpenQR(teacherID string) error {
	if d.loop == nil {
		return fmt.Errorf("dashboard: QR issuance not configured")
	}
	d.mu.Lock()
	id := d.view.Session.ID
	d.mu.Unlock()
	return d.loop.Open(id, teacherID)
}

// CloseQR stops the issuance loop.
func (d *Dashboard) CloseQR() {
	if d.loop != nil {
		d.loop.Close()
	}
}

// View returns the current state.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.view
	v.Rows = append([]Row(nil), d.view.Rows...)
	return v
}

// Notices drains pending notices.
func (d *Dashboard) Notices() []Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.notices
	d.notices = nil
	return out
}

// ActiveHeartbeats reports how many heartbeats the dashboard is holding.
func (d *Dashboard) ActiveHeartbeats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channel != nil && d.channel.HeartbeatRunning() {
		return 1
	}
	return 0
}

func (d *Dashboard) handler(ctx context.Context, seq uint64) live.Handler {
	return live.Handler{
		OnVerified: func(ev model.VerificationEvent) {
			defer d.recover("qr_verified")
			d.mu.Lock()
			current := seq == d.seq
			s := d.view.Session
			d.mu.Unlock()
			if !current || (ev.SessionID != 0 && ev.SessionID != s.ID) {
				return
			}
			name := ev.StudentName
			if name == "" {
				name = ev.StudentID
			}
			d.notify(NoticeSuccess, "Asistencia registrada: "+name)
			go d.fetch(ctx, seq, s)
		},
		OnError: func(err error) {
			defer d.recover("live_error")
			d.notify(NoticeError, "Error en la conexión en vivo: "+err.Error())
		},
		OnClosed: func() {
			defer d.recover("live_closed")
			d.mu.Lock()
			if seq == d.seq {
				d.view.Live = false
			}
			view := d.view
			d.mu.Unlock()
			d.notify(NoticeInfo, "Actualizaciones en vivo desconectadas")
			d.emit(view)
		},
	}
}

// fetch loads roster and records for s and applies them only if seq is
// still the current selection.
func (d *Dashboard) fetch(ctx context.Context, seq uint64, s model.ClassSession) (err error) {
	defer d.recover("fetch")
	var roster []model.RosterEntry
	if s.SectionID != 0 {
		roster, err = d.api.ListRoster(ctx, s.SectionID)
	}
	var records []model.AttendanceRecord
	if err == nil {
		records, err = d.api.ListAttendance(ctx, s.ID)
	}

	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		d.log.Debug("discarding stale attendance response", zap.Int64("session_id", s.ID))
		return nil
	}
	d.view.Loading = false
	if err != nil {
		d.view.Err = err
	} else {
		d.view.Err = nil
		d.view.Rows = Join(roster, records)
		d.view.Updated = time.Now()
	}
	view := d.view
	d.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		d.log.Warn("load attendance", zap.Int64("session_id", s.ID), zap.Error(err))
		d.notify(NoticeError, "Error al cargar la asistencia: "+err.Error())
	}
	d.emit(view)
	return err
}

func (d *Dashboard) notify(kind NoticeKind, text string) {
	n := Notice{Kind: kind, Text: text, At: time.Now()}
	d.mu.Lock()
	d.notices = append(d.notices, n)
	if len(d.notices) > maxNotices {
		d.notices = d.notices[len(d.notices)-maxNotices:]
	}
	d.mu.Unlock()
	if d.onNotice != nil {
		d.onNotice(n)
	}
}

func (d *Dashboard) emit(v View) {
	if d.onChange != nil {
		v.Rows = append([]Row(nil), v.Rows...)
		d.onChange(v)
	}
}

// recover keeps a panicking callback from taking the view down.
func (d *Dashboard) recover(where string) {
	if r := recover(); r != nil {
		d.log.Error("recovered panic", zap.String("in", where), zap.Any("panic", r))
		d.mu.Lock()
		d.notices = append(d.notices, Notice{
			Kind: NoticeError,
			Text: "Ocurrió un error inesperado. Recargue la vista.",
			At:   time.Now(),
		})
		d.mu.Unlock()
	}
}
