package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleAppendsAuditLine(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{Dir: dir}
	ev := AttendanceVerifiedEvent{
		AttendanceID: 7, SessionID: 2, SessionTopic: "Lecture 5",
		StudentID: "ALU-001", StudentName: "Ana Ríos", TeacherID: "DOC-001",
		CredentialID: "jti-1", VerifiedAt: "2026-10-19T10:00:00Z",
	}
	body, _ := json.Marshal(ev)
	if err := c.Handle(body); err != nil {
		t.Fatal(err)
	}
	if err := c.Handle(body); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, AuditLogName))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines %d", len(lines))
	}
	if !strings.Contains(lines[0], "attendance_id=7") || !strings.Contains(lines[0], `name="Ana Ríos"`) {
		t.Fatalf("line %q", lines[0])
	}
}

func TestHandleRejectsBadMessages(t *testing.T) {
	c := &Consumer{Dir: t.TempDir()}
	if err := c.Handle([]byte("{")); err == nil {
		t.Fatal("accepted malformed json")
	}
	if err := c.Handle([]byte(`{"session_id":1}`)); err == nil {
		t.Fatal("accepted event without student")
	}
}
