// Package capture obtains a credential from either a stream of camera frames
// or a single uploaded image.
package capture

import (
	"context"
	"errors"
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iliyamo/qr-attendance/internal/credential"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

var (
	// ErrBusy is returned when input is disabled because a previous decode is
	// still being processed.
	ErrBusy = errors.New("capture: input disabled until the current check-in completes")
	// ErrClosed is returned when a camera that already finished is run again.
	ErrClosed = errors.New("capture: camera session closed")
)

// FrameSource is the capture device.  Frame returns the next frame, or a nil
// image when none is ready yet.  Close releases the device and must be safe
// to call once the source is no longer needed.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// DecodeFunc turns one frame into a credential.
type DecodeFunc func(image.Image) (model.Credential, error)

// Camera polls a FrameSource at a bounded rate until a credential is decoded.
// A Camera runs at most once; after the first successful decode the source is
// released and the camera is done for good.
type Camera struct {
	src     FrameSource
	limiter *rate.Limiter
	decode  DecodeFunc
	log     *zap.Logger

	mu       sync.Mutex
	used     bool
	released bool
}

// NewCamera wraps src, decoding at most fps frames per second.
func NewCamera(src FrameSource, fps int, log *zap.Logger) *Camera {
	if fps < 1 {
		fps = 1
	}
	return &Camera{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		decode:  credential.Decode,
		log:     utils.OrNop(log),
	}
}

// Run blocks until a credential is read, ctx is cancelled or the source
// fails.  The source is released on every exit path.
func (c *Camera) Run(ctx context.Context) (model.Credential, error) {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.used = true
	c.mu.Unlock()
	defer c.release()

	frames := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", ctx.Err()
		}
		img, err := c.src.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		if img == nil {
			continue
		}
		frames++
		cred, err := c.decode(img)
		if errors.Is(err, credential.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		c.log.Debug("camera decoded credential", zap.Int("frames", frames))
		return cred, nil
	}
}

// release closes the source exactly once.
func (c *Camera) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	if err := c.src.Close(); err != nil {
		c.log.Warn("release camera", zap.Error(err))
	}
}
