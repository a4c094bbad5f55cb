package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/qr-attendance/internal/live"
	"github.com/iliyamo/qr-attendance/internal/model"
)

type fakeChannel struct {
	id      int64
	h       live.Handler
	running atomic.Bool
	closes  atomic.Int32
}

func (c *fakeChannel) SessionID() int64       { return c.id }
func (c *fakeChannel) HeartbeatRunning() bool { return c.running.Load() }
func (c *fakeChannel) Close() error {
	c.closes.Add(1)
	c.running.Store(false)
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	fail     bool
}

func (f *fakeDialer) dial(ctx context.Context, id int64, h live.Handler) (Channel, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.channels {
		if c.running.Load() {
			return nil, errors.New("dialed while another heartbeat was running")
		}
	}
	c := &fakeChannel{id: id, h: h}
	c.running.Store(true)
	f.channels = append(f.channels, c)
	return c, nil
}

func (f *fakeDialer) running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.channels {
		if c.running.Load() {
			n++
		}
	}
	return n
}

func (f *fakeDialer) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[len(f.channels)-1]
}

type fakeAPI struct {
	mu      sync.Mutex
	records map[int64][]model.AttendanceRecord
	delay   map[int64]time.Duration
	calls   atomic.Int32
}

func (a *fakeAPI) ListAttendance(ctx context.Context, sessionID int64) ([]model.AttendanceRecord, error) {
	a.calls.Add(1)
	a.mu.Lock()
	d := a.delay[sessionID]
	recs := append([]model.AttendanceRecord(nil), a.records[sessionID]...)
	a.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	return recs, nil
}

func (a *fakeAPI) ListRoster(ctx context.Context, sectionID int64) ([]model.RosterEntry, error) {
	return []model.RosterEntry{
		{StudentID: "A1", FirstNames: "Ana", LastNames: "Ríos"},
		{StudentID: "A2", FirstNames: "Beto", LastNames: "Soto"},
	}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestJoin(t *testing.T) {
	roster := []model.RosterEntry{{StudentID: "A1", FirstNames: "Ana"}, {StudentID: "A2", FirstNames: "Beto"}}
	recs := []model.AttendanceRecord{
		{StudentID: "A1", Status: "P", Time: "10:01"},
		{StudentID: "Z9", Status: "P"},
	}
	rows := Join(roster, recs)
	if len(rows) != 3 {
		t.Fatalf("rows %+v", rows)
	}
	if rows[0].Status != "Presente" || rows[1].Status != "Ausente" || rows[2].StudentID != "Z9" {
		t.Fatalf("rows %+v", rows)
	}
	if PresentCount(rows) != 2 {
		t.Fatalf("present %d", PresentCount(rows))
	}
}

func TestRapidSwitchesLeaveOneHeartbeat(t *testing.T) {
	dialer := &fakeDialer{}
	d := New(&fakeAPI{}, dialer.dial, Options{})
	for i := int64(1); i <= 10; i++ {
		if err := d.SelectSession(context.Background(), model.ClassSession{ID: i, SectionID: 1}); err != nil {
			t.Fatal(err)
		}
		if n := dialer.running(); n > 1 {
			t.Fatalf("after switch %d: %d heartbeats", i, n)
		}
	}
	if dialer.running() != 1 || d.ActiveHeartbeats() != 1 {
		t.Fatalf("running %d", dialer.running())
	}
	for _, c := range dialer.channels[:9] {
		if c.closes.Load() != 1 {
			t.Fatalf("channel %d closed %d times", c.id, c.closes.Load())
		}
	}
	d.Close()
	d.Close()
	if dialer.running() != 0 {
		t.Fatal("heartbeat leaked after close")
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	api := &fakeAPI{
		records: map[int64][]model.AttendanceRecord{
			1: {{StudentID: "A1", Status: "P"}},
			2: {{StudentID: "A2", Status: "P"}},
		},
		delay: map[int64]time.Duration{1: 80 * time.Millisecond},
	}
	d := New(api, (&fakeDialer{}).dial, Options{})
	defer d.Close()
	_ = d.SelectSession(context.Background(), model.ClassSession{ID: 1, SectionID: 1})
	_ = d.SelectSession(context.Background(), model.ClassSession{ID: 2, SectionID: 1})
	waitFor(t, func() bool { return api.calls.Load() == 2 })
	time.Sleep(120 * time.Millisecond)
	v := d.View()
	if v.Session.ID != 2 {
		t.Fatalf("session %d", v.Session.ID)
	}
	if len(v.Rows) != 2 || v.Rows[0].Present || !v.Rows[1].Present {
		t.Fatalf("rows from wrong session: %+v", v.Rows)
	}
}

func TestVerifiedEventRefetchesAndNotifies(t *testing.T) {
	api := &fakeAPI{records: map[int64][]model.AttendanceRecord{}}
	dialer := &fakeDialer{}
	d := New(api, dialer.dial, Options{})
	defer d.Close()
	_ = d.SelectSession(context.Background(), model.ClassSession{ID: 5, SectionID: 1, Topic: "Lecture 5"})
	waitFor(t, func() bool { return !d.View().Loading })
	if PresentCount(d.View().Rows) != 0 {
		t.Fatal("unexpected present rows")
	}

	api.mu.Lock()
	api.records[5] = []model.AttendanceRecord{{StudentID: "A1", Status: "P"}}
	api.mu.Unlock()
	dialer.last().h.OnVerified(model.VerificationEvent{Type: model.EventQRVerified, SessionID: 5, StudentID: "A1", StudentName: "Ana Ríos"})

	waitFor(t, func() bool { return PresentCount(d.View().Rows) == 1 })
	ns := d.Notices()
	if len(ns) != 1 || ns[0].Kind != NoticeSuccess || ns[0].Text != "Asistencia registrada: Ana Ríos" {
		t.Fatalf("notices %+v", ns)
	}
}

func TestEventForOtherSessionIgnored(t *testing.T) {
	api := &fakeAPI{}
	dialer := &fakeDialer{}
	d := New(api, dialer.dial, Options{})
	defer d.Close()
	_ = d.SelectSession(context.Background(), model.ClassSession{ID: 5})
	waitFor(t, func() bool { return api.calls.Load() == 1 })
	old := dialer.last()
	_ = d.SelectSession(context.Background(), model.ClassSession{ID: 6})
	waitFor(t, func() bool { return api.calls.Load() == 2 })
	old.h.OnVerified(model.VerificationEvent{SessionID: 5, StudentID: "A1"})
	time.Sleep(20 * time.Millisecond)
	if api.calls.Load() != 2 || len(d.Notices()) != 0 {
		t.Fatal("event of previous session acted upon")
	}
}

func TestDialFailureKeepsTable(t *testing.T) {
	api := &fakeAPI{records: map[int64][]model.AttendanceRecord{5: {{StudentID: "A2", Status: "P"}}}}
	d := New(api, (&fakeDialer{fail: true}).dial, Options{})
	defer d.Close()
	if err := d.SelectSession(context.Background(), model.ClassSession{ID: 5, SectionID: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !d.View().Loading })
	v := d.View()
	if v.Live || PresentCount(v.Rows) != 1 {
		t.Fatalf("view %+v", v)
	}
	if ns := d.Notices(); len(ns) != 1 || ns[0].Kind != NoticeError {
		t.Fatalf("notices %+v", ns)
	}
}

func TestSelectSessionDialHonorsCallerDeadline(t *testing.T) {
	api := &fakeAPI{records: map[int64][]model.AttendanceRecord{5: {{StudentID: "A1", Status: "P"}}}}
	hanging := func(ctx context.Context, id int64, h live.Handler) (Channel, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return nil, errors.New("dial never gave up")
		}
	}
	d := New(api, hanging, Options{})
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := d.SelectSession(ctx, model.ClassSession{ID: 5, SectionID: 1}); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("SelectSession took %v with a 50ms deadline", took)
	}
	if ns := d.Notices(); len(ns) != 1 || ns[0].Kind != NoticeError {
		t.Fatalf("notices %+v", ns)
	}
	// The table still loads after the caller's ctx expired.
	waitFor(t, func() bool { return !d.View().Loading })
	if v := d.View(); v.Live || PresentCount(v.Rows) != 1 {
		t.Fatalf("view %+v", d.View())
	}
}

func TestPanickingCallbackRecovered(t *testing.T) {
	dialer := &fakeDialer{}
	d := New(&fakeAPI{}, dialer.dial, Options{OnNotice: func(n Notice) {
		if n.Kind == NoticeSuccess {
			panic("render bug")
		}
	}})
	defer d.Close()
	_ = d.SelectSession(context.Background(), model.ClassSession{ID: 5})
	dialer.last().h.OnVerified(model.VerificationEvent{SessionID: 5, StudentName: "X"})
	found := false
	for _, n := range d.Notices() {
		if n.Text == "Ocurrió un error inesperado. Recargue la vista." {
			found = true
		}
	}
	if !found {
		t.Fatal("panic not turned into a notice")
	}
}
