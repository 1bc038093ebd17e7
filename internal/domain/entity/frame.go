package entity

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// Blob is an encoded image payload with single-owner release semantics.
type Blob struct {
	mu        sync.Mutex
	data      []byte
	released  bool
	onRelease func()
}

func NewBlob(data []byte) *Blob {
	return &Blob{data: data}
}

// OnRelease registers a hook run once when the payload is released. The
// gallery tests use it to count releases.
func (b *Blob) OnRelease(fn func()) {
	b.mu.Lock()
	b.onRelease = fn
	b.mu.Unlock()
}

// Bytes returns nil once the blob has been released.
func (b *Blob) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *Blob) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Release drops the payload. Only the first call has any effect and reports true.
func (b *Blob) Release() bool {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return false
	}
	b.released = true
	b.data = nil
	hook := b.onRelease
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return true
}

func (b *Blob) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

type Frame struct {
	ID               int64     `json:"id"`
	TimestampSeconds float64   `json:"timestamp_seconds"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Scale            int       `json:"scale"`
	Format           Format    `json:"format"`
	Size             int       `json:"size_bytes"`
	CreatedAt        time.Time `json:"created_at"`
	Payload          *Blob     `json:"-"`
}

// FileName builds the download name. seq <= 0 gives the single-frame form,
// otherwise the zero-padded bulk form.
func (f *Frame) FileName(seq int) string {
	var b strings.Builder
	b.WriteString("frame_")
	if seq > 0 {
		fmt.Fprintf(&b, "%04d_", seq)
	}
	b.WriteString(strings.ReplaceAll(FormatTimestamp(f.TimestampSeconds), ":", "-"))
	if f.Scale > 1 {
		fmt.Fprintf(&b, "_%dx", f.Scale)
	}
	if f.Width > 0 && f.Height > 0 {
		fmt.Fprintf(&b, "_%dx%d", f.Width, f.Height)
	}
	b.WriteString(".")
	b.WriteString(f.Format.Extension())
	return b.String()
}

// FormatTimestamp renders seconds as m:ss.mmm.
func FormatTimestamp(seconds float64) string {
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return "0:00"
	}
	minutes := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	ms := int(math.Mod(seconds, 1) * 1000)
	return fmt.Sprintf("%d:%02d.%03d", minutes, secs, ms)
}

// FrameIDSource hands out creation-time IDs in milliseconds, bumping to
// last+1 when several frames are created within the same millisecond.
type FrameIDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewFrameIDSource() *FrameIDSource {
	return &FrameIDSource{now: time.Now}
}

func (s *FrameIDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
