// Package issuance rotates the attendance QR shown to a teacher: a fresh
// credential is minted when the view opens and again every time the
// countdown runs out, until the view closes.
package issuance

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// ErrNoSession is returned by Open without a session or teacher.
var ErrNoSession = errors.New("issuance: a class session must be selected")

// Minter is the mint endpoint.
type Minter interface {
	MintCredential(ctx context.Context, sessionID int64, teacherID string) (model.IssuedCredential, error)
}

// State of the loop.
type State int

const (
	Idle State = iota
	Displaying
)

func (s State) String() string {
	if s == Displaying {
		return "displaying"
	}
	return "idle"
}

// Snapshot is what the view renders.
//
// Fields:
//
//	State      – Idle or Displaying.
//	SessionID  – session the credential belongs to.
//	Credential – the current QR; kept across failed mints.
//	Remaining  – whole ticks left before the next mint.
//	Minting    – a mint request is in flight.
//	Err        – last mint failure, cleared by the next success.
type Snapshot struct {
	State      State
	SessionID  int64
	Credential model.IssuedCredential
	Remaining  int
	Minting    bool
	Err        error
}

// Options configures a Loop.  Tick and Window default to one second and
// thirty seconds.
type Options struct {
	Window   time.Duration
	Tick     time.Duration
	OnChange func(Snapshot)
	Logger   *zap.Logger
}

// Loop is the Idle/Displaying state machine.  All state lives behind mu and
// every asynchronous completion is checked against gen, so a result from an
// earlier opening can never touch the current one.
type Loop struct {
	minter   Minter
	ticks    int
	tick     time.Duration
	onChange func(Snapshot)
	log      *zap.Logger

	mu        sync.Mutex
	gen       uint64
	state     State
	sessionID int64
	teacherID string
	cred      model.IssuedCredential
	remaining int
	inFlight  bool
	retry     bool
	lastErr   error
	cancel    context.CancelFunc
	ctx       context.Context
}

// NewLoop builds an idle loop.
func NewLoop(m Minter, opts Options) *Loop {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Window <= 0 {
		opts.Window = 30 * time.Second
	}
	ticks := int(opts.Window / opts.Tick)
	if ticks < 1 {
		ticks = 1
	}
	return &Loop{minter: m, ticks: ticks, tick: opts.Tick, onChange: opts.OnChange, log: utils.OrNop(opts.Logger)}
}

// Open enters Displaying for a session, minting immediately.  Opening while
// already displaying restarts the loop for the new session.
func (l *Loop) Open(sessionID int64, teacherID string) error {
	if sessionID == 0 || teacherID == "" {
		l.Close()
		return ErrNoSession
	}
	l.mu.Lock()
	l.resetLocked()
	l.gen++
	l.state = Displaying
	l.sessionID, l.teacherID = sessionID, teacherID
	l.remaining = l.ticks
	l.ctx, l.cancel = context.WithCancel(context.Background())
	gen, ctx := l.gen, l.ctx
	l.startMintLocked()
	snap := l.snapshotLocked()
	l.mu.Unlock()

	go l.run(ctx, gen)
	l.notify(snap)
	return nil
}

// Close returns to Idle: the countdown stops, an in-flight mint is
// cancelled and its result ignored, and the credential is discarded.
func (l *Loop) Close() {
	l.mu.Lock()
	wasOpen := l.state == Displaying
	l.resetLocked()
	l.gen++
	snap := l.snapshotLocked()
	l.mu.Unlock()
	if wasOpen {
		l.notify(snap)
	}
}

// Snapshot returns the current view state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Loop) resetLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel, l.ctx = nil, nil
	}
	l.state = Idle
	l.sessionID, l.teacherID = 0, ""
	l.cred = model.IssuedCredential{}
	l.remaining = 0
	l.inFlight, l.retry = false, false
	l.lastErr = nil
}

func (l *Loop) snapshotLocked() Snapshot {
	return Snapshot{
		State:      l.state,
		SessionID:  l.sessionID,
		Credential: l.cred,
		Remaining:  l.remaining,
		Minting:    l.inFlight,
		Err:        l.lastErr,
	}
}

func (l *Loop) run(ctx context.Context, gen uint64) {
	t := time.NewTicker(l.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.onTick(gen)
		}
	}
}

func (l *Loop) onTick(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.state != Displaying {
		l.mu.Unlock()
		return
	}
	if l.remaining > 0 {
		l.remaining--
	}
	if (l.remaining == 0 || l.retry) && !l.inFlight {
		l.startMintLocked()
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

// startMintLocked launches one mint.  Callers check inFlight first.
func (l *Loop) startMintLocked() {
	l.inFlight = true
	gen, ctx := l.gen, l.ctx
	sessionID, teacherID := l.sessionID, l.teacherID
	go func() {
		ic, err := l.minter.MintCredential(ctx, sessionID, teacherID)
		l.finishMint(gen, ic, err)
	}()
}

func (l *Loop) finishMint(gen uint64, ic model.IssuedCredential, err error) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		l.log.Debug("discarding mint result from a closed loop")
		return
	}
	l.inFlight = false
	if err != nil {
		l.retry = true
		l.lastErr = err
		l.log.Warn("mint failed, retrying on next tick", zap.Int64("session_id", l.sessionID), zap.Error(err))
	} else {
		if ic.IssuedAt.IsZero() {
			ic.IssuedAt = time.Now()
		}
		l.cred = ic
		l.retry = false
		l.lastErr = nil
		l.remaining = l.ticks
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.notify(snap)
}

func (l *Loop) notify(s Snapshot) {
	if l.onChange != nil {
		l.onChange(s)
	}
}
