package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/service"
)

func TestPaginate(t *testing.T) {
	e := echo.New()
	items := []int{1, 2, 3, 4, 5}
	cases := []struct {
		query string
		want  []int
	}{
		{"", []int{1, 2, 3, 4, 5}},
		{"?page=2&page_size=2", []int{3, 4}},
		{"?page=9&page_size=2", []int{}},
	}
	for _, tc := range cases {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+tc.query, nil), httptest.NewRecorder())
		got := paginate(c, items)
		if got["count"] != 5 {
			t.Errorf("%q: count = %v", tc.query, got["count"])
		}
		res := got["results"].([]int)
		if len(res) != len(tc.want) {
			t.Errorf("%q: results = %v", tc.query, res)
			continue
		}
		for i := range res {
			if res[i] != tc.want[i] {
				t.Errorf("%q: results = %v", tc.query, res)
			}
		}
	}
}

func TestSessionSocket(t *testing.T) {
	hub := service.NewHub(nil)
	e := echo.New()
	e.GET("/ws/qr/session/:id/", NewWSHandler(hub, nil).Session)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/qr/session/7/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev model.VerificationEvent
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != model.EventConnectionEstablished || ev.SessionID != 7 {
		t.Fatalf("greeting = %+v, %v", ev, err)
	}

	if err := conn.WriteJSON(map[string]string{"type": model.EventPing}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != model.EventPong {
		t.Fatalf("pong = %+v, %v", ev, err)
	}

	deadline := time.Now().Add(time.Second)
	for hub.Count(7) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast(7, model.VerificationEvent{Type: model.EventQRVerified, SessionID: 7, StudentID: "ALU-001"})
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != model.EventQRVerified || ev.StudentID != "ALU-001" {
		t.Fatalf("broadcast = %+v, %v", ev, err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline = time.Now().Add(time.Second)
	for hub.Count(7) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Count(7) != 0 {
		t.Fatal("socket still subscribed after close")
	}
}

func TestSessionSocketRejectsBadID(t *testing.T) {
	e := echo.New()
	e.GET("/ws/qr/session/:id/", NewWSHandler(service.NewHub(nil), nil).Session)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/qr/session/abc/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
