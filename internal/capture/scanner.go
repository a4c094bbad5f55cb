package capture

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// Mode is the active capture variant.
type Mode int

const (
	ModeNone Mode = iota
	ModeCamera
	ModeUpload
)

// Scanner keeps the camera and upload variants mutually exclusive.  Starting
// one tears the other down, and at most one camera holds the device at a
// time.
type Scanner struct {
	open   func() (FrameSource, error)
	fps    int
	upload *Upload
	log    *zap.Logger

	mu     sync.Mutex
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScanner builds a scanner.  open acquires the capture device each time
// the camera variant starts; it may be nil when no camera is available.
func NewScanner(open func() (FrameSource, error), fps int, log *zap.Logger) *Scanner {
	return &Scanner{open: open, fps: fps, upload: NewUpload(), log: utils.OrNop(log)}
}

// Mode reports the active variant.  A camera that already finished reports
// ModeNone.
func (s *Scanner) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeCamera && s.done != nil {
		select {
		case <-s.done:
			return ModeNone
		default:
		}
	}
	return s.mode
}

// StartCamera switches to the camera variant.  onResult is called once, from
// the camera goroutine, with the decoded credential or the failure that ended
// the capture; it is not called when the camera is stopped by the caller.
// The device is already released when onResult runs.
func (s *Scanner) StartCamera(ctx context.Context, onResult func(model.Credential, error)) error {
	if s.open == nil {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCameraLocked()
	s.upload.Reset()

	src, err := s.open()
	if err != nil {
		s.mode = ModeNone
		return err
	}
	cam := NewCamera(src, s.fps, s.log)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done, s.mode = cancel, done, ModeCamera

	go func() {
		cred, err := cam.Run(runCtx)
		close(done)
		if runCtx.Err() != nil {
			return
		}
		if onResult != nil {
			onResult(cred, err)
		}
	}()
	return nil
}

// Upload switches to the upload variant, stopping any running camera, and
// decodes data.
func (s *Scanner) Upload(data []byte) (model.Credential, error) {
	s.mu.Lock()
	s.stopCameraLocked()
	s.mode = ModeUpload
	up := s.upload
	s.mu.Unlock()
	return up.Select(data)
}

// Reset re-enables upload input after a failed submission.
func (s *Scanner) Reset() { s.upload.Reset() }

// UploadInput exposes the upload variant for previews.
func (s *Scanner) UploadInput() *Upload { return s.upload }

// Close stops everything and waits for the camera to release the device.
// Safe to call more than once.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.stopCameraLocked()
	s.mode = ModeNone
	s.mu.Unlock()
}

// stopCameraLocked cancels the running camera and waits until it released
// the device.  The camera goroutine never takes s.mu.
func (s *Scanner) stopCameraLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	if s.mode == ModeCamera {
		s.mode = ModeNone
	}
}
