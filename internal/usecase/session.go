package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"go.uber.org/zap"
)

var (
	ErrFrameNotFound = errors.New("frame not found")
	ErrNoSelection   = errors.New("no frames selected")
	ErrNoFrames      = errors.New("no frames to download")
)

// Settings are the user's extraction choices.
type Settings struct {
	IntervalSeconds float64       `json:"interval_seconds"`
	ScaleFactor     int           `json:"scale_factor"`
	Format          entity.Format `json:"format"`
}

// DefaultSettings are what a fresh or reset session starts with.
func DefaultSettings() Settings {
	return Settings{IntervalSeconds: 0.1, ScaleFactor: 1, Format: entity.FormatPNG}
}

func (s Settings) validate() error {
	if !(s.IntervalSeconds > 0) || math.IsInf(s.IntervalSeconds, 0) {
		return ErrInvalidInterval
	}
	return validateOutput(s.ScaleFactor, s.Format)
}

// SourceRef names a video to load. Cleanup runs once the session lets go
// of the source, or right away if it cannot be opened.
type SourceRef struct {
	Location string
	Name     string
	Cleanup  func() error
}

type SourceInfo struct {
	Name            string  `json:"name"`
	Duration        float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	CurrentTime     float64 `json:"current_time"`
	EstimatedFrames int     `json:"estimated_frames"`
}

type SessionStatus struct {
	State      entity.JobState            `json:"state"`
	Job        *entity.ExtractionSnapshot `json:"job,omitempty"`
	FrameCount int                        `json:"frame_count"`
	Selected   int                        `json:"selected"`
	Settings   Settings                   `json:"settings"`
	Loaded     bool                       `json:"loaded"`
}

// FrameView is a gallery entry as clients see it.
type FrameView struct {
	*entity.Frame
	FileName string `json:"file_name"`
	Selected bool   `json:"selected"`
}

// Session is one user's studio: a loaded video, the gallery with its
// selection, the extraction settings and the sequencer working on them.
type Session struct {
	opener   port.SourceOpener
	seq      *Sequencer
	gallery  port.FrameSelection
	archiver port.Archiver
	defaults Settings
	logger   *zap.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// opMu serialises the calls that drive the source.
	opMu sync.Mutex

	mu        sync.Mutex
	source    port.VideoSource
	ref       SourceRef
	settings  Settings
	runCancel context.CancelFunc
	runDone   chan struct{}
}

func NewSession(
	opener port.SourceOpener,
	sink port.RasterSink,
	gallery port.FrameSelection,
	archiver port.Archiver,
	defaults Settings,
	logger *zap.Logger,
) *Session {
	if err := defaults.validate(); err != nil {
		defaults = DefaultSettings()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opener:     opener,
		seq:        NewSequencer(sink, gallery, nil, logger),
		gallery:    gallery,
		archiver:   archiver,
		defaults:   defaults,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		settings:   defaults,
	}
}

// Load opens a new video, replacing the current one. Frames already in the
// gallery are kept.
func (s *Session) Load(ctx context.Context, ref SourceRef) (SourceInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.seq.State() == entity.JobStateRunning {
		runCleanup(ref, s.logger)
		return SourceInfo{}, ErrBusy
	}

	src, err := s.opener.Open(ctx, ref.Location)
	if err != nil {
		runCleanup(ref, s.logger)
		return SourceInfo{}, fmt.Errorf("open %s: %w", ref.Name, err)
	}

	s.mu.Lock()
	s.closeSourceLocked()
	s.source = src
	s.ref = ref
	info := s.infoLocked()
	s.mu.Unlock()

	s.logger.Info("video loaded",
		zap.String("name", ref.Name),
		zap.Float64("duration", info.Duration),
		zap.Int("estimated_frames", info.EstimatedFrames),
	)
	return info, nil
}

func (s *Session) Info() (SourceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return SourceInfo{}, ErrSourceNotLoaded
	}
	return s.infoLocked(), nil
}

func (s *Session) infoLocked() SourceInfo {
	w, h := s.source.NativeSize()
	d := s.source.Duration()
	return SourceInfo{
		Name:            s.ref.Name,
		Duration:        d,
		Width:           w,
		Height:          h,
		CurrentTime:     s.source.CurrentTime(),
		EstimatedFrames: entity.TotalSteps(d, s.settings.IntervalSeconds),
	}
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies the non-zero fields of patch. A running extraction
// keeps the settings it started with.
func (s *Session) UpdateSettings(patch Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if patch.IntervalSeconds != 0 {
		next.IntervalSeconds = patch.IntervalSeconds
	}
	if patch.ScaleFactor != 0 {
		next.ScaleFactor = patch.ScaleFactor
	}
	if patch.Format != "" {
		next.Format = patch.Format
	}
	if err := next.validate(); err != nil {
		return s.settings, err
	}
	s.settings = next
	return next, nil
}

// Seek moves the source so ExtractCurrent has a position to capture.
func (s *Session) Seek(ctx context.Context, ts float64) (SourceInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	src := s.currentSource()
	if err := validateSource(src); err != nil {
		return SourceInfo{}, err
	}
	if s.seq.State() == entity.JobStateRunning {
		return SourceInfo{}, ErrBusy
	}
	if math.IsNaN(ts) || ts < 0 {
		ts = 0
	}
	if d := src.Duration(); ts > d {
		ts = d
	}
	if err := src.Seek(ctx, ts); err != nil {
		return SourceInfo{}, err
	}
	return s.Info()
}

// ExtractAll clears the gallery and starts an extraction in the background
// with the current settings. The returned snapshot is the job at start.
func (s *Session) ExtractAll() (entity.ExtractionSnapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	src := s.source
	settings := s.settings
	s.mu.Unlock()

	job, err := s.seq.Begin(src, ExtractionRequest{
		IntervalSeconds: settings.IntervalSeconds,
		ScaleFactor:     settings.ScaleFactor,
		Format:          settings.Format,
	})
	if err != nil {
		return entity.ExtractionSnapshot{}, err
	}

	if n := s.gallery.Clear(); n > 0 {
		s.logger.Debug("gallery cleared for extraction", zap.Int("frames", n))
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.mu.Lock()
	s.runCancel = cancel
	s.runDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.seq.Run(ctx, src, job, func(p entity.Progress) {
			s.logger.Debug("extraction progress",
				zap.Int("completed", p.Completed),
				zap.Int("total", p.Total),
				zap.Int("percent", p.Percent),
			)
		})
	}()

	return job.Snapshot(), nil
}

// Wait blocks until the background extraction, if any, has finished.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) ExtractCurrent(ctx context.Context) (*entity.Frame, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	src := s.source
	settings := s.settings
	s.mu.Unlock()

	return s.seq.ExtractSingle(ctx, src, settings.ScaleFactor, settings.Format)
}

// Cancel stops the running extraction after its current frame.
func (s *Session) Cancel() bool {
	return s.seq.Cancel()
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	st := SessionStatus{
		State:    s.seq.State(),
		Settings: s.settings,
		Loaded:   s.source != nil,
	}
	s.mu.Unlock()

	if job := s.seq.Job(); job != nil {
		snap := job.Snapshot()
		st.Job = &snap
	}
	st.FrameCount = s.gallery.Count()
	st.Selected = len(s.gallery.Selected())
	return st
}

func (s *Session) Frames() []FrameView {
	frames := s.gallery.Frames()
	out := make([]FrameView, 0, len(frames))
	for _, f := range frames {
		out = append(out, FrameView{
			Frame:    f,
			FileName: f.FileName(0),
			Selected: s.gallery.IsSelected(f.ID),
		})
	}
	return out
}

func (s *Session) Frame(id int64) (*entity.Frame, error) {
	f, ok := s.gallery.Get(id)
	if !ok || f.Payload == nil || f.Payload.Released() {
		return nil, ErrFrameNotFound
	}
	return f, nil
}

// DeleteFrame releases one frame. Unknown ids report false.
func (s *Session) DeleteFrame(id int64) bool {
	return s.gallery.Remove(id)
}

func (s *Session) ToggleFrame(id int64) (bool, error) {
	if _, ok := s.gallery.Get(id); !ok {
		return false, ErrFrameNotFound
	}
	return s.gallery.Toggle(id), nil
}

func (s *Session) ToggleAll() bool {
	return s.gallery.ToggleAll()
}

func (s *Session) DeleteSelected() (int, error) {
	if len(s.gallery.Selected()) == 0 {
		return 0, ErrNoSelection
	}
	return s.gallery.RemoveSelected(), nil
}

// WriteArchive zips the gallery, or only the selection when selectedOnly.
func (s *Session) WriteArchive(ctx context.Context, w io.Writer, selectedOnly bool) error {
	frames := s.gallery.Frames()
	if selectedOnly {
		picked := frames[:0:0]
		for _, f := range frames {
			if s.gallery.IsSelected(f.ID) {
				picked = append(picked, f)
			}
		}
		frames = picked
	}
	if len(frames) == 0 {
		return ErrNoFrames
	}
	return s.archiver.WriteArchive(ctx, w, frames)
}

// Reset stops any extraction, releases every frame, unloads the video and
// restores the default settings.
func (s *Session) Reset(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.stopRun(ctx); err != nil {
		return err
	}

	released := s.gallery.Clear()

	s.mu.Lock()
	s.closeSourceLocked()
	s.settings = s.defaults
	s.mu.Unlock()

	s.logger.Info("session reset", zap.Int("frames_released", released))
	return nil
}

// Close tears the session down for good.
func (s *Session) Close(ctx context.Context) error {
	err := s.Reset(ctx)
	s.baseCancel()
	return err
}

func (s *Session) stopRun(ctx context.Context) error {
	s.seq.Cancel()
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.Wait(ctx)
}

func (s *Session) currentSource() port.VideoSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) closeSourceLocked() {
	if s.source == nil {
		return
	}
	if c, ok := s.source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("closing video source", zap.Error(err))
		}
	}
	runCleanup(s.ref, s.logger)
	s.source = nil
	s.ref = SourceRef{}
}

func runCleanup(ref SourceRef, logger *zap.Logger) {
	if ref.Cleanup == nil {
		return
	}
	if err := ref.Cleanup(); err != nil {
		logger.Warn("source cleanup failed", zap.String("name", ref.Name), zap.Error(err))
	}
}
