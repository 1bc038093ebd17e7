package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"github.com/fiapx/fiapx-frame-studio/internal/gallery"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInterrupted is returned when shutdown stops a job midway so the
// message goes back on the queue.
var ErrInterrupted = errors.New("extraction interrupted")

type ProcessExtractionUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	opener    port.SourceOpener
	sink      port.RasterSink
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
	defaults  Settings
	notifyTo  string
}

type ProcessExtractionConfig struct {
	TempDir    string
	MaxRetries int
	Defaults   Settings
	// NotifyTo receives failure emails for requests without a user email.
	NotifyTo string
}

func NewProcessExtractionUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	opener port.SourceOpener,
	sink port.RasterSink,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessExtractionConfig,
) *ProcessExtractionUseCase {
	if err := cfg.Defaults.validate(); err != nil {
		cfg.Defaults = DefaultSettings()
	}
	return &ProcessExtractionUseCase{
		repo:      repo,
		storage:   storage,
		opener:    opener,
		sink:      sink,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
		defaults:  cfg.Defaults,
		notifyTo:  cfg.NotifyTo,
	}
}

// Execute handles one extraction request. A nil return acks the message;
// an error asks the consumer to requeue it.
func (uc *ProcessExtractionUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessExtractionUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.ExtractionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	msg.ApplyDefaults(uc.defaults.IntervalSeconds, uc.defaults.ScaleFactor, uc.defaults.Format)
	if err := msg.Validate(); err != nil {
		uc.logger.Error("invalid extraction request", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "validation_error: "+err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.Float64("job.interval_seconds", msg.IntervalSeconds),
		attribute.Int("job.scale_factor", msg.ScaleFactor),
		attribute.String("job.format", string(msg.Format)),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg, uc.maxRetry)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", "")
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	uc.publishStatus(ctx, job, nil, log)

	if err := uc.pipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *ProcessExtractionUseCase) pipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	dlCtx, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(dlCtx, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	src, err := uc.opener.Open(ctx, videoPath)
	if err != nil {
		return uc.handleSourceFailure(ctx, job, msg, rawMsg, "open_video", err, log)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	store := gallery.NewStore()
	defer store.Clear()

	lastPercent := -1
	seq := NewSequencer(uc.sink, store, nil, log)
	result, err := seq.Start(ctx, src, ExtractionRequest{
		IntervalSeconds: msg.IntervalSeconds,
		ScaleFactor:     msg.ScaleFactor,
		Format:          msg.Format,
		OnProgress: func(p entity.Progress) {
			job.RecordProgress(p)
			if p.Percent != lastPercent {
				lastPercent = p.Percent
				uc.publishStatus(ctx, job, &p, log)
			}
		},
	})
	if err != nil {
		// Preconditions only fail here for sources that probed without a
		// usable stream.
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "extract_frames: "+err.Error(), entity.MediaErrSrcNotSupported.Category())
	}

	switch result.State() {
	case entity.JobStateFailed:
		return uc.handleSourceFailure(ctx, job, msg, rawMsg, "extract_frames", result.Err(), log)
	case entity.JobStateCancelled:
		return uc.handleInterrupted(ctx, job, store.Count(), log)
	}

	archiveKey := ""
	if store.Count() > 0 {
		archiveKey = fmt.Sprintf("%s/frames_%s.zip", msg.UserID, job.ID.String())
		if err := uc.upload(ctx, store.Frames(), workDir, archiveKey); err != nil {
			log.Error("archive upload failed", zap.Error(err))
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, err.Error(), log)
		}
	} else {
		log.Warn("video shorter than one interval, no frames captured",
			zap.Float64("duration", src.Duration()),
			zap.Float64("interval_seconds", msg.IntervalSeconds),
		)
	}

	job.MarkCompleted(archiveKey, store.Count(), src.Duration())
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, nil, log)
	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()

	log.Info("job completed successfully",
		zap.Int("frame_count", job.FrameCount),
		zap.Float64("duration_secs", job.VideoDuration),
		zap.String("archive_key", archiveKey),
	)
	return nil
}

func (uc *ProcessExtractionUseCase) upload(ctx context.Context, frames []*entity.Frame, workDir, key string) error {
	tracer := otel.Tracer("usecase")

	zipStart := time.Now()
	zipCtx, spanZip := tracer.Start(ctx, "create_zip")
	zipPath := filepath.Join(workDir, "frames.zip")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		spanZip.End()
		return fmt.Errorf("create_zip: %w", err)
	}
	defer zipFile.Close()
	if err := uc.archiver.WriteArchive(zipCtx, zipFile, frames); err != nil {
		spanZip.End()
		return fmt.Errorf("create_zip: %w", err)
	}
	spanZip.End()
	metrics.JobProcessingDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	upStart := time.Now()
	upCtx, spanUp := tracer.Start(ctx, "upload_zip")
	defer spanUp.End()
	size, err := zipFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("open_zip: %w", err)
	}
	if _, err := zipFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("open_zip: %w", err)
	}
	if err := uc.storage.UploadArchive(upCtx, key, zipFile, size); err != nil {
		return fmt.Errorf("upload_zip: %w", err)
	}
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())
	return nil
}

// handleSourceFailure treats media errors as permanent: retrying a video
// that cannot be decoded gives the same result.
func (uc *ProcessExtractionUseCase) handleSourceFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	stage string,
	err error,
	log *zap.Logger,
) error {
	if ctx.Err() != nil {
		return uc.handleInterrupted(ctx, job, job.FrameCount, log)
	}
	errMsg := stage + ": " + err.Error()
	if category := entity.MediaErrorCategory(err); category != "" {
		log.Error("video cannot be processed", zap.String("category", category), zap.Error(err))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, category)
	}
	return uc.handleRetryableFailure(ctx, job, msg, rawMsg, errMsg, log)
}

func (uc *ProcessExtractionUseCase) handleInterrupted(ctx context.Context, job *entity.Job, frames int, log *zap.Logger) error {
	ctx = context.WithoutCancel(ctx)
	job.MarkCancelled(frames)
	_ = uc.repo.Update(ctx, job)
	uc.publishStatus(ctx, job, nil, log)
	metrics.JobsProcessedTotal.WithLabelValues("cancelled").Inc()
	log.Warn("extraction interrupted, message will be requeued", zap.Int("frames", frames))
	return ErrInterrupted
}

func (uc *ProcessExtractionUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg, "")
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, "")
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, nil, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessExtractionUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.ExtractionRequestMessage,
	rawMsg []byte,
	errMsg string,
	category string,
) error {
	job.MarkFailed(errMsg, category)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, nil, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	to := msg.UserEmail
	if to == "" {
		to = uc.notifyTo
	}
	if to != "" {
		_ = uc.notifier.NotifyFailure(ctx, to, port.FailureNotice{
			JobID:      job.ID.String(),
			VideoKey:   msg.VideoKey,
			Error:      errMsg,
			Category:   category,
			FrameCount: job.FrameCount,
		})
	}

	return nil
}

func (uc *ProcessExtractionUseCase) publishStatus(ctx context.Context, job *entity.Job, progress *entity.Progress, log *zap.Logger) {
	statusMsg := entity.ExtractionStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		ArchiveKey:    job.ArchiveKey,
		Progress:      progress,
		FrameCount:    job.FrameCount,
		Duration:      job.VideoDuration,
		ErrorMessage:  job.ErrorMessage,
		ErrorCategory: job.ErrorCategory,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
