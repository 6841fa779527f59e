package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoRefKey(t *testing.T) {
	ref := VideoRef{OwnerID: 42, URL: "https://cdn.example.com/uploads/abc/squat.mp4?sig=1"}
	assert.Equal(t, "squat.mp4", ref.FileName())
	assert.Equal(t, "42/squat.mp4", ref.Key())
	assert.Equal(t, "squat", ref.ContentID())

	plain := VideoRef{OwnerID: 7, URL: "clip.mov"}
	assert.Equal(t, "7/clip.mov", plain.Key())
}

func TestFilesystemSourceFetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "3"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3", "a.mp4"), []byte("data"), 0644))

	src, err := NewFilesystemSource(dir)
	require.NoError(t, err)

	v, err := src.Fetch(context.Background(), VideoRef{OwnerID: 3, URL: "https://x/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "3", "a.mp4"), v.Path)
	require.NoError(t, v.Release())
	_, err = os.Stat(v.Path)
	assert.NoError(t, err, "in-place files must survive release")

	_, err = src.Fetch(context.Background(), VideoRef{OwnerID: 3, URL: "missing.mp4"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPContentSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/contents/ok/download":
			w.Write([]byte("video-bytes"))
		case "/api/v1/contents/private/download":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	src := NewHTTPContentSource(server.URL, t.TempDir())

	v, err := src.Fetch(context.Background(), VideoRef{OwnerID: 1, URL: "https://x/ok.mp4"})
	require.NoError(t, err)
	data, err := os.ReadFile(v.Path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
	require.NoError(t, v.Release())
	_, err = os.Stat(v.Path)
	assert.True(t, os.IsNotExist(err))

	_, err = src.Fetch(context.Background(), VideoRef{OwnerID: 1, URL: "https://x/gone.mp4"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Fetch(context.Background(), VideoRef{OwnerID: 1, URL: "https://x/private.mp4"})
	assert.ErrorIs(t, err, ErrAccessDenied)
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
	keys    []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3SourceFetch(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{"9/coach.mp4": []byte("mp4")}}
	src := NewS3SourceWithClient(client, "bucket", t.TempDir())

	v, err := src.Fetch(context.Background(), VideoRef{OwnerID: 9, URL: "https://bucket/9/coach.mp4"})
	require.NoError(t, err)
	defer v.Release()
	assert.Equal(t, "coach.mp4", filepath.Base(v.Path))
	assert.Equal(t, []string{"9/coach.mp4"}, client.keys)

	_, err = src.Fetch(context.Background(), VideoRef{OwnerID: 9, URL: "other.mp4"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3SourceAccessDenied(t *testing.T) {
	client := &fakeS3{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}}
	src := NewS3SourceWithClient(client, "bucket", t.TempDir())

	_, err := src.Fetch(context.Background(), VideoRef{OwnerID: 1, URL: "a.mp4"})
	assert.ErrorIs(t, err, ErrAccessDenied)
}
