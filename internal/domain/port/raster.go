package port

import (
	"context"
	"image"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
)

type RasterRequest struct {
	Frame   image.Image
	Width   int
	Height  int
	Format  entity.Format
	Quality float64
}

// RasterSink draws a frame onto a fresh surface of the requested size with
// smoothing and encodes it. An empty payload means the encode failed.
type RasterSink interface {
	Rasterize(ctx context.Context, req RasterRequest) ([]byte, error)
}
