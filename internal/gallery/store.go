// Package gallery holds captured frames in capture order together with the
// user's selection.
package gallery

import (
	"sync"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
)

var _ port.FrameSelection = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	frames   []*entity.Frame
	index    map[int64]int
	selected map[int64]struct{}
}

func NewStore() *Store {
	return &Store{
		index:    make(map[int64]int),
		selected: make(map[int64]struct{}),
	}
}

// Append adds a frame at the end. A frame whose id is already present
// replaces the old entry, whose payload is released.
func (s *Store) Append(frame *entity.Frame) {
	s.mu.Lock()
	var replaced *entity.Frame
	if i, ok := s.index[frame.ID]; ok {
		replaced = s.frames[i]
		s.frames[i] = frame
	} else {
		s.index[frame.ID] = len(s.frames)
		s.frames = append(s.frames, frame)
	}
	s.mu.Unlock()

	if replaced != nil && replaced.Payload != nil {
		replaced.Payload.Release()
	}
}

func (s *Store) Get(id int64) (*entity.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.frames[i], true
}

// Remove takes the frame out of the gallery and releases its payload. The
// entry is gone before the release runs, so a second Remove is a no-op.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	frame := s.removeLocked(id)
	s.mu.Unlock()

	if frame == nil {
		return false
	}
	if frame.Payload != nil {
		frame.Payload.Release()
	}
	return true
}

func (s *Store) removeLocked(id int64) *entity.Frame {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	frame := s.frames[i]
	s.frames = append(s.frames[:i], s.frames[i+1:]...)
	delete(s.index, id)
	delete(s.selected, id)
	for j := i; j < len(s.frames); j++ {
		s.index[s.frames[j].ID] = j
	}
	return frame
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Frames returns a snapshot in capture order.
func (s *Store) Frames() []*entity.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Clear removes every frame, releasing payloads, and returns how many were held.
func (s *Store) Clear() int {
	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	s.index = make(map[int64]int)
	s.selected = make(map[int64]struct{})
	s.mu.Unlock()

	for _, f := range frames {
		if f.Payload != nil {
			f.Payload.Release()
		}
	}
	return len(frames)
}

// Toggle flips the selection of one frame and reports whether it is now
// selected. Unknown ids stay unselected.
func (s *Store) Toggle(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return false
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return false
	}
	s.selected[id] = struct{}{}
	return true
}

// ToggleAll selects every frame, or clears the selection when everything is
// already selected. It reports whether all frames are now selected.
func (s *Store) ToggleAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == len(s.frames) {
		s.selected = make(map[int64]struct{})
		return false
	}
	for _, f := range s.frames {
		s.selected[f.ID] = struct{}{}
	}
	return true
}

func (s *Store) IsSelected(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// Selected returns the selected ids in capture order.
func (s *Store) Selected() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.selected))
	for _, f := range s.frames {
		if _, ok := s.selected[f.ID]; ok {
			out = append(out, f.ID)
		}
	}
	return out
}

// RemoveSelected deletes every selected frame and returns how many went.
func (s *Store) RemoveSelected() int {
	s.mu.Lock()
	var removed []*entity.Frame
	for id := range s.selected {
		if f := s.removeLocked(id); f != nil {
			removed = append(removed, f)
		}
	}
	s.selected = make(map[int64]struct{})
	s.mu.Unlock()

	for _, f := range removed {
		if f.Payload != nil {
			f.Payload.Release()
		}
	}
	return len(removed)
}
