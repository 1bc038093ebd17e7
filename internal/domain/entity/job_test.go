package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestDefaultsAndValidation(t *testing.T) {
	msg := ExtractionRequestMessage{JobID: uuid.New(), VideoKey: "u/v.mp4"}
	msg.ApplyDefaults(0.1, 1, FormatPNG)
	assert.NoError(t, msg.Validate())
	assert.Equal(t, 0.1, msg.IntervalSeconds)

	bad := msg
	bad.ScaleFactor = -1
	assert.Error(t, bad.Validate())

	bad = msg
	bad.Format = "tiff"
	assert.Error(t, bad.Validate())

	bad = msg
	bad.JobID = uuid.Nil
	assert.Error(t, bad.Validate())
}

func TestJobLifecycle(t *testing.T) {
	msg := ExtractionRequestMessage{JobID: uuid.New(), UserID: "u", VideoKey: "k", IntervalSeconds: 1, ScaleFactor: 2, Format: FormatWebP}
	job := NewJob(msg, 2)
	assert.Equal(t, msg.JobID, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)

	job.MarkProcessing()
	job.RecordProgress(NewProgress(3, 10))
	assert.Equal(t, 3, job.FrameCount)
	assert.Equal(t, 10, job.TotalSteps)

	job.MarkFailed("boom", "network")
	assert.True(t, job.CanRetry())
	job.MarkProcessing()
	assert.Empty(t, job.ErrorCategory)
	assert.False(t, job.CanRetry())

	job.MarkCompleted("u/frames.zip", 10, 12.5)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}
