package service

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/utils"
)

// Subscriber is one socket listening to a session.  Its writer drains Send.
type Subscriber struct {
	SessionID int64
	Send      chan []byte
}

// Hub fans messages out to the sockets of a session.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[*Subscriber]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{subs: map[int64]map[*Subscriber]struct{}{}, log: utils.OrNop(log)}
}

// Subscribe registers a socket for sessionID.
func (h *Hub) Subscribe(sessionID int64) *Subscriber {
	s := &Subscriber{SessionID: sessionID, Send: make(chan []byte, 16)}
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[*Subscriber]struct{}{}
	}
	h.subs[sessionID][s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its Send channel.  Safe to repeat.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.SessionID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.SessionID)
	}
	close(s.Send)
}

// Broadcast sends v as JSON to every socket of sessionID and returns how
// many received it.  A socket whose buffer is full misses the message.
func (h *Hub) Broadcast(sessionID int64, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("hub: marshal", zap.Error(err))
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.subs[sessionID] {
		select {
		case s.Send <- b:
			n++
		default:
			h.log.Warn("hub: slow subscriber, dropping message", zap.Int64("session_id", sessionID))
		}
	}
	return n
}

// Count returns the number of sockets on sessionID.
func (h *Hub) Count(sessionID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
