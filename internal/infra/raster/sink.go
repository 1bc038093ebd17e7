package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/ffmpeg"
	"github.com/nfnt/resize"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// Sink resamples frames with Lanczos filtering and encodes them. WebP has no
// encoder in the image packages, so it goes through ffmpeg's libwebp.
type Sink struct {
	ffmpegPath string
	logger     *zap.Logger
}

func NewSink(ffmpegPath string, logger *zap.Logger) *Sink {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Sink{ffmpegPath: ffmpegPath, logger: logger}
}

func (s *Sink) Rasterize(ctx context.Context, req port.RasterRequest) ([]byte, error) {
	if req.Frame == nil {
		return nil, fmt.Errorf("no frame to draw")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("invalid surface %dx%d", req.Width, req.Height)
	}

	img := draw(req.Frame, req.Width, req.Height)

	data, err := s.encode(ctx, img, req.Format, req.Quality)
	if err != nil {
		s.logger.Warn("frame encode failed",
			zap.String("format", string(req.Format)),
			zap.Error(err),
		)
		return nil, err
	}
	return data, nil
}

func draw(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	return resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
}

func (s *Sink) encode(ctx context.Context, img image.Image, format entity.Format, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case entity.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case entity.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: qualityPercent(quality)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case entity.FormatWebP:
		return s.encodeWebP(ctx, img, quality)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return buf.Bytes(), nil
}

func (s *Sink) encodeWebP(ctx context.Context, img image.Image, quality float64) ([]byte, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return nil, fmt.Errorf("encode webp input: %w", err)
	}
	stream := ffmpeggo.Input("pipe:", ffmpeggo.KwArgs{"f": "png_pipe"}).
		Output("pipe:", ffmpeggo.KwArgs{
			"f":       "webp",
			"c:v":     "libwebp",
			"quality": qualityPercent(quality),
		})
	out, err := ffmpeg.Run(ctx, s.ffmpegPath, stream, &in)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return out, nil
}

func qualityPercent(q float64) int {
	p := int(math.Round(q * 100))
	switch {
	case p < 1:
		return 1
	case p > 100:
		return 100
	}
	return p
}
