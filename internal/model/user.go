package model

import "time"

// Role names as derived from the login payload flags.  The backend marks a
// user with is_docente or is_alumno; anything else is RoleUnknown.
const (
	RoleTeacher = "docente"
	RoleStudent = "alumno"
	RoleUnknown = "unknown"
)

// User is the authenticated identity returned by the login endpoint.  It is
// the client-side view of the account: the client never stores passwords and
// only keeps the identifiers it needs to act as a teacher or a student.
//
// Fields:
//
//	UserID    – backend user primary key.
//	Email     – login email.
//	Role      – RoleTeacher, RoleStudent or RoleUnknown.
//	TeacherID – str_idDocente when the user is a teacher.
//	StudentID – str_idAlumno when the user is a student.
type User struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TeacherID string `json:"docente_id,omitempty"`
	StudentID string `json:"alumno_id,omitempty"`
}

// IsTeacher reports whether the user can issue credentials.
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// IsStudent reports whether the user can check in.
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// TokenPair holds the access and refresh tokens of an authenticated user.  The
// access token is short-lived and attached to every outbound request; the
// refresh token is exchanged for a new access token when the access token is
// rejected.  Only the auth package mutates a stored TokenPair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether neither token is present.
func (p TokenPair) Empty() bool { return p.AccessToken == "" && p.RefreshToken == "" }

// Account mirrors a row of the backend users table.  It is only used by the
// development backend.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – RoleTeacher or RoleStudent.
//	TeacherID    – str_idDocente for teachers (empty otherwise).
//	StudentID    – str_idAlumno for students (empty otherwise).
//	CreatedAt    – timestamp of creation.
type Account struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	TeacherID    string    // users.docente_id
	StudentID    string    // users.alumno_id
	CreatedAt    time.Time // users.created_at
}
