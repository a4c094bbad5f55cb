package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/service"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

const wsWriteWait = 10 * time.Second

// WSHandler upgrades teacher views onto a session's live channel.
type WSHandler struct {
	Hub      *service.Hub
	Log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *service.Hub, log *zap.Logger) *WSHandler {
	return &WSHandler{
		Hub: hub,
		Log: utils.OrNop(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Session serves /ws/qr/session/:id/.  It greets with connection_established,
// answers ping with pong and relays the hub's messages for the session.
func (h *WSHandler) Session(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid session id"})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.Log.Warn("ws: upgrade", zap.Error(err))
		return nil
	}
	log := h.Log.With(zap.Int64("session_id", id))
	sub := h.Hub.Subscribe(id)
	done := make(chan struct{})
	go writePump(conn, sub, done, log)

	push(sub, model.VerificationEvent{Type: model.EventConnectionEstablished, SessionID: id}, log)
	log.Debug("ws: connected", zap.Int("sockets", h.Hub.Count(id)))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("ws: read", zap.Error(err))
			}
			break
		}
		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == model.EventPing {
			push(sub, model.VerificationEvent{Type: model.EventPong, SessionID: id}, log)
		}
	}

	h.Hub.Unsubscribe(sub)
	<-done
	_ = conn.Close()
	log.Debug("ws: disconnected")
	return nil
}

// push queues a message for this socket only.
func push(sub *service.Subscriber, v any, log *zap.Logger) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case sub.Send <- b:
	default:
		log.Warn("ws: send buffer full")
	}
}

// writePump owns all writes to conn.  It exits when Send is closed; after a
// write error it closes conn so the read loop returns, and keeps draining.
func writePump(conn *websocket.Conn, sub *service.Subscriber, done chan<- struct{}, log *zap.Logger) {
	defer close(done)
	broken := false
	for msg := range sub.Send {
		if broken {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Info("ws: write", zap.Error(err))
			broken = true
			_ = conn.Close()
		}
	}
	if !broken {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}
