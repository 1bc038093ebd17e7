package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	ErrBusy              = errors.New("an extraction is already running")
	ErrSourceNotLoaded   = errors.New("no video source loaded")
	ErrSourceNotReady    = errors.New("video source is still loading")
	ErrInvalidInterval   = errors.New("interval must be a positive number of seconds")
	ErrInvalidScale      = errors.New("scale factor must be at least 1")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrEncodeFailed      = errors.New("frame could not be encoded")
)

// ExtractionRequest parameterises one "extract all" run.
type ExtractionRequest struct {
	IntervalSeconds float64
	ScaleFactor     int
	Format          entity.Format
	// OnProgress runs on the sequencer's goroutine after every appended frame.
	OnProgress func(entity.Progress)
}

// Sequencer drives a VideoSource through evenly spaced timestamps, one step
// at a time, appending every encoded frame to its gallery.
type Sequencer struct {
	sink   port.RasterSink
	store  port.GalleryStore
	ids    *entity.FrameIDSource
	logger *zap.Logger

	mu      sync.Mutex
	current *entity.ExtractionJob
}

func NewSequencer(sink port.RasterSink, store port.GalleryStore, ids *entity.FrameIDSource, logger *zap.Logger) *Sequencer {
	if ids == nil {
		ids = entity.NewFrameIDSource()
	}
	return &Sequencer{sink: sink, store: store, ids: ids, logger: logger}
}

// State reports Idle before the first job, otherwise the last job's state.
func (s *Sequencer) State() entity.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return entity.JobStateIdle
	}
	return s.current.State()
}

// Job returns the running or most recently finished job, nil when Idle.
func (s *Sequencer) Job() *entity.ExtractionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Cancel asks the running job to stop after its current step. It is a no-op
// when nothing is running.
func (s *Sequencer) Cancel() bool {
	s.mu.Lock()
	job := s.current
	s.mu.Unlock()
	if job == nil || job.State() != entity.JobStateRunning {
		return false
	}
	return job.Cancel()
}

// Start runs an extraction to a terminal state and returns the job. Errors
// are returned only for rejected starts; a job that fails or is cancelled is
// reported through its state.
func (s *Sequencer) Start(ctx context.Context, src port.VideoSource, req ExtractionRequest) (*entity.ExtractionJob, error) {
	job, err := s.Begin(src, req)
	if err != nil {
		return nil, err
	}
	s.Run(ctx, src, job, req.OnProgress)
	return job, nil
}

// Begin checks the preconditions and registers a Running job without doing
// any work, so callers can reject a request synchronously and run it
// elsewhere. Every job returned must be passed to Run.
func (s *Sequencer) Begin(src port.VideoSource, req ExtractionRequest) (*entity.ExtractionJob, error) {
	if err := validateSource(src); err != nil {
		return nil, err
	}
	if !(req.IntervalSeconds > 0) || math.IsInf(req.IntervalSeconds, 0) {
		return nil, ErrInvalidInterval
	}
	if err := validateOutput(req.ScaleFactor, req.Format); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.State() == entity.JobStateRunning {
		return nil, ErrBusy
	}
	job := entity.NewExtractionJob(req.IntervalSeconds, req.ScaleFactor, req.Format, src.Duration())
	s.current = job
	return job, nil
}

// Run drives a job from Begin to a terminal state.
func (s *Sequencer) Run(ctx context.Context, src port.VideoSource, job *entity.ExtractionJob, onProgress func(entity.Progress)) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "Sequencer.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("extraction.interval_seconds", job.IntervalSeconds),
		attribute.Int("extraction.scale_factor", job.ScaleFactor),
		attribute.String("extraction.format", string(job.Format)),
		attribute.Int("extraction.total_steps", job.TotalSteps),
	)

	metrics.ActiveExtractions.Inc()
	defer metrics.ActiveExtractions.Dec()

	log := s.logger.With(
		zap.Float64("interval_seconds", job.IntervalSeconds),
		zap.Int("scale_factor", job.ScaleFactor),
		zap.String("format", string(job.Format)),
	)
	log.Info("extraction started",
		zap.Float64("duration", job.Duration),
		zap.Int("total_steps", job.TotalSteps),
	)

	start := time.Now()
	s.run(ctx, src, job, onProgress, log)
	metrics.JobProcessingDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())

	state := job.State()
	span.SetAttributes(
		attribute.String("extraction.state", string(state)),
		attribute.Int("extraction.completed_steps", job.CompletedSteps()),
	)
	if state == entity.JobStateFailed {
		span.SetStatus(codes.Error, job.Err().Error())
	}
	log.Info("extraction finished",
		zap.String("state", string(state)),
		zap.Int("completed_steps", job.CompletedSteps()),
		zap.Int("total_steps", job.TotalSteps),
	)
}

func (s *Sequencer) run(ctx context.Context, src port.VideoSource, job *entity.ExtractionJob, onProgress func(entity.Progress), log *zap.Logger) {
	if job.TotalSteps == 0 {
		job.Finish(entity.JobStateCompleted, nil)
		return
	}

	for i := 0; ; i++ {
		ts := float64(i) * job.IntervalSeconds
		if ts >= job.Duration || job.CompletedSteps() >= job.TotalSteps {
			break
		}

		if err := src.Seek(ctx, ts); err != nil {
			if ctx.Err() != nil {
				job.Finish(entity.JobStateCancelled, nil)
				return
			}
			log.Error("seek failed", zap.Float64("timestamp", ts), zap.Error(err))
			job.Finish(entity.JobStateFailed, err)
			return
		}

		frame, err := s.capture(ctx, src, ts, job.ScaleFactor, job.Format)
		switch {
		case errors.Is(err, ErrEncodeFailed):
			metrics.EncodeFailuresTotal.WithLabelValues(string(job.Format)).Inc()
			log.Warn("skipping frame", zap.Float64("timestamp", ts), zap.Error(err))
		case err != nil:
			log.Error("frame capture failed", zap.Float64("timestamp", ts), zap.Error(err))
			job.Finish(entity.JobStateFailed, err)
			return
		default:
			s.store.Append(frame)
			p := job.Advance()
			metrics.FramesExtractedTotal.Inc()
			if onProgress != nil {
				onProgress(p)
			}
		}

		if job.Cancelled() || ctx.Err() != nil {
			job.Finish(entity.JobStateCancelled, nil)
			return
		}
	}

	job.Finish(entity.JobStateCompleted, nil)
}

// ExtractSingle captures the source's current position without seeking.
func (s *Sequencer) ExtractSingle(ctx context.Context, src port.VideoSource, scale int, format entity.Format) (*entity.Frame, error) {
	if err := validateSource(src); err != nil {
		return nil, err
	}
	if err := validateOutput(scale, format); err != nil {
		return nil, err
	}

	s.mu.Lock()
	busy := s.current != nil && s.current.State() == entity.JobStateRunning
	s.mu.Unlock()
	if busy {
		return nil, ErrBusy
	}

	frame, err := s.capture(ctx, src, src.CurrentTime(), scale, format)
	if err != nil {
		if errors.Is(err, ErrEncodeFailed) {
			metrics.EncodeFailuresTotal.WithLabelValues(string(format)).Inc()
		}
		return nil, err
	}
	s.store.Append(frame)
	metrics.FramesExtractedTotal.Inc()
	return frame, nil
}

// capture renders the decoded frame at native size times scale and encodes
// it. Encode problems are wrapped in ErrEncodeFailed; anything else comes
// from the source.
func (s *Sequencer) capture(ctx context.Context, src port.VideoSource, ts float64, scale int, format entity.Format) (*entity.Frame, error) {
	img, err := src.CurrentFrame(ctx)
	if err != nil {
		return nil, err
	}

	w, h := src.NativeSize()
	width, height := w*scale, h*scale

	data, err := s.sink.Rasterize(ctx, port.RasterRequest{
		Frame:   img,
		Width:   width,
		Height:  height,
		Format:  format,
		Quality: format.Quality(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrEncodeFailed)
	}

	return &entity.Frame{
		ID:               s.ids.Next(),
		TimestampSeconds: ts,
		Width:            width,
		Height:           height,
		Scale:            scale,
		Format:           format,
		Size:             len(data),
		CreatedAt:        time.Now().UTC(),
		Payload:          entity.NewBlob(data),
	}, nil
}

func validateSource(src port.VideoSource) error {
	if src == nil {
		return ErrSourceNotLoaded
	}
	d := src.Duration()
	if src.ReadyState() < port.HaveCurrentData || math.IsNaN(d) || math.IsInf(d, 0) {
		return ErrSourceNotReady
	}
	return nil
}

func validateOutput(scale int, format entity.Format) error {
	if scale < 1 {
		return ErrInvalidScale
	}
	if !format.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}
