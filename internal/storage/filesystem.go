package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemSource serves videos from a local directory laid out as
// <baseDir>/<ownerID>/<file name>
type FilesystemSource struct {
	baseDir string
}

// NewFilesystemSource creates a filesystem video source
func NewFilesystemSource(baseDir string) (*FilesystemSource, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemSource{
		baseDir: baseDir,
	}, nil
}

// Fetch returns the stored file in place; nothing is copied
func (fs *FilesystemSource) Fetch(ctx context.Context, ref VideoRef) (*LocalVideo, error) {
	p, err := fs.resolve(ref.Key())
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref.Key(), ErrNotFound)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%s: %w", ref.Key(), ErrAccessDenied)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", ref.Key(), ErrNotFound)
	}

	return &LocalVideo{Path: p}, nil
}

// resolve joins key under the base directory, rejecting traversal
func (fs *FilesystemSource) resolve(key string) (string, error) {
	base := filepath.Clean(fs.baseDir)
	p := filepath.Clean(filepath.Join(base, key))
	if p != base && !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key: path traversal detected")
	}
	return p, nil
}
