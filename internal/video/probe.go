package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// StreamInfo describes the first video stream of a container
type StreamInfo struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	RFrameRate string `json:"r_frame_rate"`
	NBFrames   string `json:"nb_frames"`
}

type probeResult struct {
	Streams []StreamInfo `json:"streams"`
}

// Probe runs ffprobe against path and returns the first video stream.
func Probe(ctx context.Context, binary, path string) (StreamInfo, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return StreamInfo{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner",
		"-select_streams", "v:0", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return StreamInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return StreamInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (StreamInfo, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	for _, s := range result.Streams {
		if strings.EqualFold(s.CodecType, "video") || s.CodecType == "" {
			if s.Width <= 0 || s.Height <= 0 {
				return StreamInfo{}, fmt.Errorf("ffprobe: invalid video dimensions %dx%d", s.Width, s.Height)
			}
			return s, nil
		}
	}
	return StreamInfo{}, ErrNoVideoStream
}
