package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPContentSource fetches videos via the simple-content HTTP API
type HTTPContentSource struct {
	baseURL    string
	httpClient *http.Client
	tempDir    string
}

// NewHTTPContentSource creates a new HTTP-based video source
func NewHTTPContentSource(baseURL, tempDir string) *HTTPContentSource {
	return &HTTPContentSource{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		tempDir: tempDir,
	}
}

// Fetch downloads /api/v1/contents/{id}/download into a temporary file
func (cs *HTTPContentSource) Fetch(ctx context.Context, ref VideoRef) (*LocalVideo, error) {
	url := fmt.Sprintf("%s/api/v1/contents/%s/download", cs.baseURL, ref.ContentID())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cs.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download content: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("content %s: %w", ref.ContentID(), ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("content %s: %w", ref.ContentID(), ErrAccessDenied)
	default:
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return spool(cs.tempDir, ref.FileName(), resp.Body)
}
