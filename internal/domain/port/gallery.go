package port

import "github.com/fiapx/fiapx-frame-studio/internal/domain/entity"

type GalleryStore interface {
	Append(frame *entity.Frame)
	// Remove releases the frame's payload. Unknown ids are a no-op.
	Remove(id int64) bool
	Count() int
	Frames() []*entity.Frame
	Clear() int
}

// FrameSelection is a gallery with the user's selection layered on top.
type FrameSelection interface {
	GalleryStore
	Get(id int64) (*entity.Frame, bool)
	Toggle(id int64) bool
	ToggleAll() bool
	IsSelected(id int64) bool
	Selected() []int64
	RemoveSelected() int
}
