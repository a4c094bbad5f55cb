package capture

import (
	"errors"
	"sync"

	"github.com/iliyamo/qr-attendance/internal/credential"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// NotFoundMessage is shown when an uploaded image has no readable code.
const NotFoundMessage = "No se pudo detectar un código QR en la imagen"

// Upload decodes user-selected images one at a time.  After a successful
// decode the input stays disabled until Reset, so one image cannot be
// submitted twice.
type Upload struct {
	decode func([]byte) (model.Credential, error)

	mu       sync.Mutex
	disabled bool
	preview  []byte
}

// NewUpload returns an enabled upload input.
func NewUpload() *Upload {
	return &Upload{decode: credential.DecodeBytes}
}

// Select decodes data.  A missing code returns an error wrapping
// credential.ErrNotFound with NotFoundMessage as its text; the input stays
// enabled so the user can pick another file.
func (u *Upload) Select(data []byte) (model.Credential, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disabled {
		return "", ErrBusy
	}
	u.preview = data
	cred, err := u.decode(data)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return "", &notFoundError{}
		}
		return "", err
	}
	u.disabled = true
	return cred, nil
}

// Preview returns the bytes of the last selected image.
func (u *Upload) Preview() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.preview
}

// Disabled reports whether input is currently blocked.
func (u *Upload) Disabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.disabled
}

// Reset re-enables input and drops the preview.
func (u *Upload) Reset() {
	u.mu.Lock()
	u.disabled = false
	u.preview = nil
	u.mu.Unlock()
}

type notFoundError struct{}

func (*notFoundError) Error() string { return NotFoundMessage }
func (*notFoundError) Unwrap() error { return credential.ErrNotFound }
