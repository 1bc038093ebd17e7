package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os/exec"
	"testing"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestRasterizePNGScalesToSurface(t *testing.T) {
	sink := NewSink("", zap.NewNop())
	data, err := sink.Rasterize(context.Background(), port.RasterRequest{
		Frame: testFrame(32, 18), Width: 64, Height: 36, Format: entity.FormatPNG, Quality: 1,
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 36, img.Bounds().Dy())
}

func TestRasterizeJPEG(t *testing.T) {
	sink := NewSink("", zap.NewNop())
	data, err := sink.Rasterize(context.Background(), port.RasterRequest{
		Frame: testFrame(40, 30), Width: 40, Height: 30, Format: entity.FormatJPEG, Quality: 0.95,
	})
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
}

func TestRasterizeRejectsBadRequests(t *testing.T) {
	sink := NewSink("", zap.NewNop())
	_, err := sink.Rasterize(context.Background(), port.RasterRequest{Width: 1, Height: 1, Format: entity.FormatPNG})
	assert.Error(t, err)

	_, err = sink.Rasterize(context.Background(), port.RasterRequest{Frame: testFrame(2, 2), Width: 0, Height: 2, Format: entity.FormatPNG})
	assert.Error(t, err)

	_, err = sink.Rasterize(context.Background(), port.RasterRequest{Frame: testFrame(2, 2), Width: 2, Height: 2, Format: "bmp"})
	assert.Error(t, err)
}

func TestRasterizeWebP(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not in PATH")
	}
	sink := NewSink("", zap.NewNop())
	data, err := sink.Rasterize(context.Background(), port.RasterRequest{
		Frame: testFrame(16, 16), Width: 16, Height: 16, Format: entity.FormatWebP, Quality: 0.95,
	})
	if err != nil {
		t.Skipf("ffmpeg without libwebp: %v", err)
	}
	require.GreaterOrEqual(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WEBP", string(data[8:12]))
}

func TestQualityPercent(t *testing.T) {
	assert.Equal(t, 95, qualityPercent(0.95))
	assert.Equal(t, 100, qualityPercent(1.0))
	assert.Equal(t, 1, qualityPercent(0))
}
