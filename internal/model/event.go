package model

// Live channel message types.
const (
	EventQRVerified            = "qr_verified"
	EventConnectionEstablished = "connection_established"
	EventPing                  = "ping"
	EventPong                  = "pong"
)

// VerificationEvent is the transient notification pushed to a teacher's view
// when a student checks in.  It is a signal to re-fetch the attendance list,
// never a source of truth.
type VerificationEvent struct {
	Type        string `json:"type"`
	SessionID   int64  `json:"session_id"`
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}
