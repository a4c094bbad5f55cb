package model

import "time"

// Credential is the opaque short-lived token embedded in an attendance QR
// image.  The client never interprets it for authorization purposes; the
// server alone decides whether it is valid, expired or already used.
type Credential string

// String returns the raw token.
func (c Credential) String() string { return string(c) }

// IssuedCredential is what the mint endpoint returns to a teacher: the QR
// image to display and, when the backend includes them, the raw token and its
// expiry.
//
// Fields:
//
//	QRCode    – base64 PNG, bare or as a data URL.
//	Token     – raw credential string (optional).
//	ExpiresAt – server-side expiry (zero when not sent).
//	IssuedAt  – local time the response arrived.
type IssuedCredential struct {
	QRCode    string     `json:"qr_code"`
	Token     Credential `json:"token,omitempty"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
	IssuedAt  time.Time  `json:"-"`
}
