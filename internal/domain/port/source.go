package port

import (
	"context"
	"image"
)

// ReadyState follows the media element readiness levels.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// VideoSource exposes one decoded position at a time.
type VideoSource interface {
	Duration() float64
	NativeSize() (width, height int)
	ReadyState() ReadyState
	CurrentTime() float64
	// Seek blocks until the source has landed on ts and decoded the frame
	// there. Failures are *entity.MediaError values.
	Seek(ctx context.Context, ts float64) error
	// CurrentFrame returns the frame decoded at CurrentTime.
	CurrentFrame(ctx context.Context) (image.Image, error)
}

// SourceOpener loads a video from a local path or URL.
type SourceOpener interface {
	Open(ctx context.Context, location string) (VideoSource, error)
}
