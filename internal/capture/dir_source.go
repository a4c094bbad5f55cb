package capture

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "image/jpeg"
	_ "image/png"
)

// DirSource treats a directory as a camera: each new image file dropped into
// it is one frame.  Snapshot tools that write numbered captures to disk can
// feed the camera variant this way.
type DirSource struct {
	dir string

	mu     sync.Mutex
	seen   map[string]bool
	closed bool
}

// NewDirSource watches dir for image files.
func NewDirSource(dir string) (*DirSource, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return &DirSource{dir: dir, seen: map[string]bool{}}, nil
}

// Frame returns the oldest unseen image in name order, or nil when there is
// none.  Files that fail to decode are skipped.
func (d *DirSource) Frame(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || d.seen[e.Name()] {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.seen[n] = true
		f, err := os.Open(filepath.Join(d.dir, n))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			continue
		}
		return img, nil
	}
	return nil, nil
}

// Close stops the source.
func (d *DirSource) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
