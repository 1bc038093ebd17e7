package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// Opener loads sources through ffprobe/ffmpeg binaries.
type Opener struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewOpener(ffmpegPath, ffprobePath string, logger *zap.Logger) *Opener {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Opener{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

func (o *Opener) Open(ctx context.Context, location string) (port.VideoSource, error) {
	return o.OpenSource(ctx, location)
}

// OpenSource probes the location and returns a source positioned at 0.
func (o *Opener) OpenSource(ctx context.Context, location string) (*Source, error) {
	info, err := Probe(ctx, o.ffprobePath, location)
	if err != nil {
		return nil, err
	}
	o.logger.Info("video source opened",
		zap.Float64("duration", info.Duration),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.String("codec", info.Codec),
	)
	return &Source{
		location:   location,
		info:       *info,
		ffmpegPath: o.ffmpegPath,
		ready:      port.HaveEnoughData,
		logger:     o.logger,
	}, nil
}

// Source decodes one frame per seek with ffmpeg. Only one seek runs at a time.
type Source struct {
	location   string
	info       VideoInfo
	ffmpegPath string
	logger     *zap.Logger

	mu      sync.Mutex
	ready   port.ReadyState
	current float64
	frame   image.Image
}

func (s *Source) Info() VideoInfo                 { return s.info }
func (s *Source) Duration() float64               { return s.info.Duration }
func (s *Source) NativeSize() (width, height int) { return s.info.Width, s.info.Height }

func (s *Source) ReadyState() port.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Source) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Source) Seek(ctx context.Context, ts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(ctx, ts)
}

func (s *Source) seekLocked(ctx context.Context, ts float64) error {
	if s.ready == port.HaveNothing {
		return entity.NewMediaError(entity.MediaErrAborted, fmt.Errorf("source closed"))
	}
	if ts < 0 {
		ts = 0
	}

	img, err := s.decodeAt(ctx, ts)
	if err != nil {
		return err
	}
	if img == nil {
		// Past the last decodable frame: stay on the previous picture, as a
		// player would.
		if s.frame == nil {
			return entity.NewMediaError(entity.MediaErrDecode, fmt.Errorf("no frame at %.3fs", ts))
		}
		s.logger.Debug("no frame at timestamp, keeping previous", zap.Float64("timestamp", ts))
	} else {
		s.frame = img
	}
	s.current = ts
	return nil
}

func (s *Source) CurrentFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		if err := s.seekLocked(ctx, s.current); err != nil {
			return nil, err
		}
	}
	return s.frame, nil
}

func (s *Source) decodeAt(ctx context.Context, ts float64) (image.Image, error) {
	stream := ffmpeggo.Input(s.location, ffmpeggo.KwArgs{"ss": strconv.FormatFloat(ts, 'f', 3, 64)}).
		Output("pipe:", ffmpeggo.KwArgs{
			"vframes": 1,
			"format":  "image2",
			"vcodec":  "png",
		})

	out, err := Run(ctx, s.ffmpegPath, stream, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, entity.NewMediaError(entity.MediaErrDecode, fmt.Errorf("decode frame at %.3fs: %w", ts, err))
	}
	return img, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = port.HaveNothing
	s.frame = nil
	return nil
}

// Run executes an ffmpeg-go stream under ctx and returns its stdout.
func Run(ctx context.Context, ffmpegPath string, stream *ffmpeggo.Stream, stdin io.Reader) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, append([]string{"-hide_banner", "-loglevel", "error"}, stream.GetArgs()...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, classify(ctx, fmt.Errorf("ffmpeg: %w", err), stderr.String())
	}
	return stdout.Bytes(), nil
}
