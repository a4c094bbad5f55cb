// Package queue defines message payloads exchanged over the message broker.
package queue

// AttendanceQueueName is the durable queue verified check-ins are published
// to.
const AttendanceQueueName = "attendance.verified"

// AttendanceVerifiedEvent is published when a credential is accepted.  It
// carries enough for audit logging without querying the database.
type AttendanceVerifiedEvent struct {
	AttendanceID int64  `json:"attendance_id"`
	SessionID    int64  `json:"session_id"`
	SessionTopic string `json:"session_topic"`
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
	TeacherID    string `json:"teacher_id"`
	CredentialID string `json:"credential_id"`
	VerifiedAt   string `json:"verified_at"`
}
