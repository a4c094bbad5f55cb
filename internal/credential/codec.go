// Package credential converts between attendance credentials and the QR
// images that carry them.
package credential

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// ErrNotFound is returned when an image contains no decodable QR code.
var ErrNotFound = errors.New("no QR code found in image")

// DefaultSize is the edge length in pixels of encoded QR images.
const DefaultSize = 256

// Decode extracts the credential text from an image.  Any failure of the
// underlying reader (no finder pattern, checksum, format) collapses to
// ErrNotFound; the caller only needs to know whether a code was read.
func Decode(img image.Image) (model.Credential, error) {
	if img == nil {
		return "", ErrNotFound
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", ErrNotFound
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", ErrNotFound
	}
	text := strings.TrimSpace(res.GetText())
	if text == "" {
		return "", ErrNotFound
	}
	return model.Credential(text), nil
}

// DecodeBytes decodes an encoded PNG, JPEG or GIF and reads the QR code in
// it.  Undecodable image data is reported as ErrNotFound as well.
func DecodeBytes(data []byte) (model.Credential, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", ErrNotFound
	}
	return Decode(img)
}

// Encode renders c as a PNG QR code of the given size (DefaultSize when <= 0).
func Encode(c model.Credential, size int) ([]byte, error) {
	if c == "" {
		return nil, errors.New("empty credential")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(c.String(), qrcode.Medium, size)
}

// EncodeDataURL renders c and wraps the PNG as a data URL, the form the mint
// endpoint returns to teachers.
func EncodeDataURL(c model.Credential, size int) (string, error) {
	b, err := Encode(c, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// ParseDataURL accepts either a data URL or bare base64 and returns the raw
// image bytes.
func ParseDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		if !strings.Contains(s[:i], ";base64") {
			return nil, fmt.Errorf("data URL is not base64")
		}
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return b, nil
}

// DecodeIssued recovers the credential embedded in a mint response image.
func DecodeIssued(ic model.IssuedCredential) (model.Credential, error) {
	if ic.Token != "" {
		return ic.Token, nil
	}
	b, err := ParseDataURL(ic.QRCode)
	if err != nil {
		return "", err
	}
	return DecodeBytes(b)
}

// Info is the display-only view of a JWT-shaped credential.
type Info struct {
	SessionID int64
	TeacherID string
	ID        string
	ExpiresAt time.Time
}

// Inspect reads the claims of a JWT-shaped credential without verifying the
// signature.  The result is for display (countdowns, logs) and must never be
// used to decide validity.
func Inspect(c model.Credential) (Info, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.String(), claims); err != nil {
		return Info{}, false
	}
	var info Info
	if v, ok := claims["sid"].(float64); ok {
		info.SessionID = int64(v)
	}
	if v, ok := claims["tid"].(string); ok {
		info.TeacherID = v
	}
	if v, ok := claims["jti"].(string); ok {
		info.ID = v
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, true
}
