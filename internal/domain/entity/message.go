package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// ExtractionRequestMessage is the inbound message from the extraction queue.
type ExtractionRequestMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	VideoKey        string    `json:"video_key"`
	FileSize        int64     `json:"file_size"`
	UserEmail       string    `json:"user_email"`
	IntervalSeconds float64   `json:"interval_seconds"`
	ScaleFactor     int       `json:"scale_factor"`
	Format          Format    `json:"format"`
}

// ApplyDefaults fills unset extraction parameters.
func (m *ExtractionRequestMessage) ApplyDefaults(interval float64, scale int, format Format) {
	if m.IntervalSeconds == 0 {
		m.IntervalSeconds = interval
	}
	if m.ScaleFactor == 0 {
		m.ScaleFactor = scale
	}
	if m.Format == "" {
		m.Format = format
	}
}

func (m ExtractionRequestMessage) Validate() error {
	if m.JobID == uuid.Nil {
		return fmt.Errorf("job_id is required")
	}
	if m.VideoKey == "" {
		return fmt.Errorf("video_key is required")
	}
	if !(m.IntervalSeconds > 0) {
		return fmt.Errorf("interval_seconds must be positive, got %v", m.IntervalSeconds)
	}
	if m.ScaleFactor < 1 {
		return fmt.Errorf("scale_factor must be at least 1, got %d", m.ScaleFactor)
	}
	if !m.Format.Valid() {
		return fmt.Errorf("unsupported format %q", m.Format)
	}
	return nil
}

// ExtractionStatusMessage is the outbound message published to the status queue.
type ExtractionStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	Status        JobStatus `json:"status"`
	VideoKey      string    `json:"video_key"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	Progress      *Progress `json:"progress,omitempty"`
	FrameCount    int       `json:"frame_count,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ErrorCategory string    `json:"error_category,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}
