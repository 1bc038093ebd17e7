package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
)

// VideoInfo is what the studio needs to know about a source before seeking.
type VideoInfo struct {
	Duration  float64 `json:"duration_seconds"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	Container string  `json:"container"`
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against a path or URL.
func Probe(ctx context.Context, ffprobePath, location string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		location,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("ffprobe: %w", err), stderr.String())
	}
	return parseProbe(output)
}

func parseProbe(data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, entity.NewMediaError(entity.MediaErrDecode, fmt.Errorf("parse ffprobe output: %w", err))
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, entity.NewMediaError(entity.MediaErrDecode, fmt.Errorf("video stream has no dimensions"))
		}
		info := &VideoInfo{
			Width:     s.Width,
			Height:    s.Height,
			Codec:     s.CodecName,
			Container: out.Format.FormatName,
		}
		info.Duration = parseSeconds(out.Format.Duration)
		if info.Duration == 0 {
			info.Duration = parseSeconds(s.Duration)
		}
		return info, nil
	}
	return nil, entity.NewMediaError(entity.MediaErrSrcNotSupported, fmt.Errorf("no video stream found"))
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

var (
	networkMarkers = []string{
		"connection refused", "connection timed out", "connection reset",
		"server returned", "http error", "network is unreachable",
		"failed to resolve", "i/o error", "end of file",
	}
	unsupportedMarkers = []string{
		"invalid data found when processing input", "unknown format",
		"no such file or directory", "not supported", "does not contain any stream",
		"protocol not found",
	}
)

// classify maps an ffmpeg/ffprobe failure to a media error category using
// its stderr output.
func classify(ctx context.Context, err error, stderr string) error {
	if ctx.Err() != nil {
		return entity.NewMediaError(entity.MediaErrAborted, ctx.Err())
	}
	detail := strings.ToLower(stderr)
	wrapped := err
	if s := strings.TrimSpace(stderr); s != "" {
		wrapped = fmt.Errorf("%w: %s", err, lastLine(s))
	}
	for _, m := range networkMarkers {
		if strings.Contains(detail, m) {
			return entity.NewMediaError(entity.MediaErrNetwork, wrapped)
		}
	}
	for _, m := range unsupportedMarkers {
		if strings.Contains(detail, m) {
			return entity.NewMediaError(entity.MediaErrSrcNotSupported, wrapped)
		}
	}
	return entity.NewMediaError(entity.MediaErrDecode, wrapped)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
