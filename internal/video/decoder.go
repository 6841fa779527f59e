package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrNoVideoStream is returned when a file has no decodable video stream
var ErrNoVideoStream = errors.New("no video stream")

// Handle is an open, forward-only sequence of decoded frames.
// Next returns io.EOF once every frame has been read.
type Handle interface {
	Next() (image.Image, error)
	Close() error
}

// Opener opens a local video file for decoding
type Opener interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// Decoder decodes videos to RGB frames by piping ffmpeg rawvideo output
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewDecoder creates a decoder using the given ffmpeg/ffprobe binaries
func NewDecoder(ffmpegPath, ffprobePath string) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Decoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Open probes the file for its frame size and starts an ffmpeg process
// streaming rgb24 frames. The returned handle owns the process.
func (d *Decoder) Open(ctx context.Context, path string) (Handle, error) {
	info, err := Probe(ctx, d.ffprobePath, path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-hide_banner",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	h := &processHandle{
		frames: NewRawHandle(stdout, info.Width, info.Height),
		cmd:    cmd,
		stderr: stderr,
	}
	return h, nil
}

// processHandle ties a raw frame stream to the ffmpeg process producing it
type processHandle struct {
	frames *RawHandle
	cmd    *exec.Cmd
	stderr *bytes.Buffer

	once    sync.Once
	waitErr error
}

func (h *processHandle) Next() (image.Image, error) {
	img, err := h.frames.Next()
	if errors.Is(err, io.EOF) {
		// ffmpeg reports decode failures through its exit status
		if werr := h.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}
	return img, err
}

func (h *processHandle) wait() error {
	h.once.Do(func() {
		if err := h.cmd.Wait(); err != nil {
			h.waitErr = fmt.Errorf("ffmpeg decode failed: %w: %s", err, strings.TrimSpace(h.stderr.String()))
		}
	})
	return h.waitErr
}

// Close stops ffmpeg if it is still running and reaps it
func (h *processHandle) Close() error {
	h.once.Do(func() {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		_ = h.cmd.Wait()
	})
	return nil
}

// RawHandle reads packed rgb24 frames of a fixed size from a stream
type RawHandle struct {
	r      io.Reader
	width  int
	height int
	buf    []byte
}

// NewRawHandle wraps r, which must yield width*height*3 bytes per frame
func NewRawHandle(r io.Reader, width, height int) *RawHandle {
	return &RawHandle{
		r:      r,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
}

// Next decodes the next frame into a fresh RGBA image
func (h *RawHandle) Next() (image.Image, error) {
	if _, err := io.ReadFull(h.r, h.buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame: %w", err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	for i, j := 0, 0; i < len(h.buf); i, j = i+3, j+4 {
		img.Pix[j] = h.buf[i]
		img.Pix[j+1] = h.buf[i+1]
		img.Pix[j+2] = h.buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Close releases the underlying reader when it is closable
func (h *RawHandle) Close() error {
	if c, ok := h.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
