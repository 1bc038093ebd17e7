package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is the persisted record of a queued extraction.
type Job struct {
	ID              uuid.UUID
	UserID          string
	VideoKey        string
	ArchiveKey      string
	Status          JobStatus
	IntervalSeconds float64
	ScaleFactor     int
	Format          Format
	TotalSteps      int
	FrameCount      int
	FileSize        int64
	VideoDuration   float64
	Attempt         int
	MaxAttempts     int
	ErrorMessage    string
	ErrorCategory   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewJob(msg ExtractionRequestMessage, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:              msg.JobID,
		UserID:          msg.UserID,
		VideoKey:        msg.VideoKey,
		FileSize:        msg.FileSize,
		IntervalSeconds: msg.IntervalSeconds,
		ScaleFactor:     msg.ScaleFactor,
		Format:          msg.Format,
		Status:          JobStatusPending,
		Attempt:         0,
		MaxAttempts:     maxAttempts,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.ErrorCategory = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) RecordProgress(p Progress) {
	j.TotalSteps = p.Total
	j.FrameCount = p.Completed
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(archiveKey string, frameCount int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArchiveKey = archiveKey
	j.FrameCount = frameCount
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkCancelled(frameCount int) {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.FrameCount = frameCount
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg, category string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.ErrorCategory = category
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
