// Package live keeps the teacher's view subscribed to verification events of
// one class session over a WebSocket.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// DefaultHeartbeat is the ping interval.
const DefaultHeartbeat = 30 * time.Second

// Handler receives channel events.  Callbacks run on the channel's read
// goroutine in delivery order and may be nil.
type Handler struct {
	OnOpen     func()
	OnVerified func(model.VerificationEvent)
	// OnError reports transport failures.  They never close the channel by
	// themselves.
	OnError func(error)
	// OnClosed fires when the server or network ended the connection.  It
	// does not fire after Close.
	OnClosed func()
}

// Options configures Dial.
type Options struct {
	BaseURL   string // ws:// or wss:// origin
	Heartbeat time.Duration
	Header    http.Header
	Dialer    *websocket.Dialer
	Logger    *zap.Logger
}

// URL returns the channel address of a session.
func URL(base string, sessionID int64) string {
	return fmt.Sprintf("%s/ws/qr/session/%d/", strings.TrimRight(base, "/"), sessionID)
}

// Channel is one open subscription.  It owns exactly one connection and one
// heartbeat goroutine; Close releases both and is safe to call repeatedly.
type Channel struct {
	sessionID int64
	conn      *websocket.Conn
	h         Handler
	log       *zap.Logger

	writeMu sync.Mutex
	open    atomic.Bool
	closing atomic.Bool
	hbAlive atomic.Bool

	stop     chan struct{}
	hbDone   chan struct{}
	readDone chan struct{}
	once     sync.Once
}

// Dial connects to the session channel and starts the read loop and the
// heartbeat.
func Dial(ctx context.Context, sessionID int64, h Handler, opts Options) (*Channel, error) {
	if sessionID == 0 {
		return nil, fmt.Errorf("live: session id required")
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	target := URL(opts.BaseURL, sessionID)
	conn, _, err := dialer.DialContext(ctx, target, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("live: dial %s: %w", target, err)
	}
	c := &Channel{
		sessionID: sessionID,
		conn:      conn,
		h:         h,
		log:       utils.OrNop(opts.Logger).With(zap.Int64("session_id", sessionID)),
		stop:      make(chan struct{}),
		hbDone:    make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	c.open.Store(true)
	c.hbAlive.Store(true)
	c.log.Info("live channel open", zap.String("url", target))
	if h.OnOpen != nil {
		h.OnOpen()
	}
	go c.readLoop()
	go c.heartbeat(opts.Heartbeat)
	return c, nil
}

// SessionID returns the session the channel is subscribed to.
func (c *Channel) SessionID() int64 { return c.sessionID }

// Open reports whether the connection is still usable.
func (c *Channel) Open() bool { return c.open.Load() }

// HeartbeatRunning reports whether the ping goroutine is alive.
func (c *Channel) HeartbeatRunning() bool { return c.hbAlive.Load() }

// Done is closed once the read loop has exited.
func (c *Channel) Done() <-chan struct{} { return c.readDone }

// Close stops the heartbeat, waits for it to exit, then closes the socket.
// The read loop exits on its own; Close does not wait for it, so it may be
// called from a Handler callback.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		c.closing.Store(true)
		close(c.stop)
		<-c.hbDone

		wasOpen := c.open.Swap(false)
		if wasOpen {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		err = c.conn.Close()
		c.log.Info("live channel closed")
	})
	return err
}

// Send writes a JSON envelope.
func (c *Channel) Send(v any) error {
	if !c.open.Load() {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// heartbeat pings while the connection is open.  Ping failures are logged;
// the read loop notices a dead connection.
func (c *Channel) heartbeat(every time.Duration) {
	defer func() {
		c.hbAlive.Store(false)
		close(c.hbDone)
	}()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-c.readDone:
			return
		case <-t.C:
			if !c.open.Load() {
				continue
			}
			if err := c.Send(envelope{Type: model.EventPing}); err != nil {
				c.log.Warn("heartbeat ping failed", zap.Error(err))
			}
		}
	}
}

type envelope struct {
	Type string `json:"type"`
}

func (c *Channel) readLoop() {
	defer close(c.readDone)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			c.open.Store(false)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("live channel read failed", zap.Error(err))
				if c.h.OnError != nil {
					c.h.OnError(err)
				}
			}
			if c.h.OnClosed != nil {
				c.h.OnClosed()
			}
			return
		}
		if c.closing.Load() {
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var msg struct {
		Type        string          `json:"type"`
		SessionID   json.RawMessage `json:"session_id"`
		StudentID   json.RawMessage `json:"student_id"`
		StudentName string          `json:"student_name"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("unparseable live message", zap.Error(err), zap.ByteString("data", data))
		return
	}
	switch msg.Type {
	case model.EventQRVerified:
		ev := model.VerificationEvent{
			Type:        msg.Type,
			SessionID:   parseID(msg.SessionID, c.sessionID),
			StudentID:   parseText(msg.StudentID),
			StudentName: msg.StudentName,
		}
		c.log.Debug("qr verified", zap.String("student_id", ev.StudentID))
		if c.h.OnVerified != nil {
			c.h.OnVerified(ev)
		}
	case model.EventConnectionEstablished:
		c.log.Debug("connection established")
	case model.EventPong:
	default:
		c.log.Info("ignoring live message", zap.String("type", msg.Type))
	}
}

// parseID accepts a number or a numeric string, falling back to def.
// parseText reads a string or a bare number as text.
func parseText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func parseID(raw json.RawMessage, def int64) int64 {
	if len(raw) == 0 {
		return def
	}
	var n int64
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if _, err := fmt.Sscan(s, &n); err == nil {
			return n
		}
	}
	return def
}
