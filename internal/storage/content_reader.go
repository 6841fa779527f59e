package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// ContentSource fetches videos from a simple-content service. The video
// URL's last path segment (without extension) is the content id.
type ContentSource struct {
	service simplecontent.Service
	tempDir string
}

// NewContentSource creates a video source backed by simple-content
func NewContentSource(service simplecontent.Service, tempDir string) *ContentSource {
	return &ContentSource{
		service: service,
		tempDir: tempDir,
	}
}

// Fetch downloads the content into a temporary file
func (cs *ContentSource) Fetch(ctx context.Context, ref VideoRef) (*LocalVideo, error) {
	// Parse content ID
	id, err := uuid.Parse(ref.ContentID())
	if err != nil {
		return nil, fmt.Errorf("invalid content ID %q: %w", ref.ContentID(), ErrNotFound)
	}

	// Any lookup error is reported as not found
	if _, err := cs.service.GetContent(ctx, id); err != nil {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}

	reader, err := cs.service.DownloadContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to download content: %w", err)
	}
	defer reader.Close()

	return spool(cs.tempDir, ref.FileName(), reader)
}
