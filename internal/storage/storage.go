package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when the referenced video does not exist
	ErrNotFound = errors.New("video not found")

	// ErrAccessDenied is returned when the store refuses access
	ErrAccessDenied = errors.New("access denied")
)

// VideoRef identifies a stored video: the owner (coach or user) id and
// the video URL the client uploaded.
type VideoRef struct {
	OwnerID int64
	URL     string
}

// FileName is the last path segment of the video URL
func (r VideoRef) FileName() string {
	p := r.URL
	if u, err := url.Parse(r.URL); err == nil && u.Path != "" {
		p = u.Path
	}
	return path.Base(p)
}

// Key is the object key "<ownerID>/<file name>" under which uploads are stored
func (r VideoRef) Key() string {
	return fmt.Sprintf("%d/%s", r.OwnerID, r.FileName())
}

// ContentID is the file name without extension, used by content stores
// that address videos by id.
func (r VideoRef) ContentID() string {
	name := r.FileName()
	return strings.TrimSuffix(name, path.Ext(name))
}

// LocalVideo is a fetched video available on local disk
type LocalVideo struct {
	Path    string
	cleanup func() error
}

// NewLocalVideo wraps a local path; cleanup may be nil
func NewLocalVideo(path string, cleanup func() error) *LocalVideo {
	return &LocalVideo{Path: path, cleanup: cleanup}
}

// Release removes any temporary copy made by the source
func (v *LocalVideo) Release() error {
	if v == nil || v.cleanup == nil {
		return nil
	}
	cleanup := v.cleanup
	v.cleanup = nil
	return cleanup()
}

// VideoSource resolves a stored video to a local file
type VideoSource interface {
	Fetch(ctx context.Context, ref VideoRef) (*LocalVideo, error)
}

// spool copies r into a fresh temporary directory under tempDir and
// returns the local file; Release removes the directory.
func spool(tempDir, name string, r io.Reader) (*LocalVideo, error) {
	dir, err := os.MkdirTemp(tempDir, "video-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "video"
	}
	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return &LocalVideo{Path: dst, cleanup: cleanup}, nil
}
