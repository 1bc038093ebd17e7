package entity

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// ParseFormat accepts the format names used by clients, including "jpg".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

func (f Format) Valid() bool {
	return f == FormatPNG || f == FormatJPEG || f == FormatWebP
}

// Quality is fixed per format: lossless for png, 0.95 for the lossy ones.
func (f Format) Quality() float64 {
	if f == FormatPNG {
		return 1.0
	}
	return 0.95
}

func (f Format) Extension() string {
	return string(f)
}

func (f Format) ContentType() string {
	return "image/" + string(f)
}

type JobState string

const (
	JobStateIdle      JobState = "IDLE"
	JobStateRunning   JobState = "RUNNING"
	JobStateCompleted JobState = "COMPLETED"
	JobStateCancelled JobState = "CANCELLED"
	JobStateFailed    JobState = "FAILED"
)

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateCancelled || s == JobStateFailed
}

// Progress is emitted after every captured frame.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

func NewProgress(completed, total int) Progress {
	p := Progress{Completed: completed, Total: total}
	if total > 0 {
		p.Percent = int(math.Round(100 * float64(completed) / float64(total)))
	}
	return p
}

// TotalSteps is floor(duration/interval), zero for non-positive inputs.
func TotalSteps(duration, intervalSeconds float64) int {
	if !(duration > 0) || !(intervalSeconds > 0) || math.IsInf(duration, 0) {
		return 0
	}
	return int(math.Floor(duration / intervalSeconds))
}

// ExtractionJob is the ephemeral state of one "extract all" run. Counters and
// state are safe to read while the sequencer is mutating them.
type ExtractionJob struct {
	IntervalSeconds float64
	ScaleFactor     int
	Format          Format
	Duration        float64
	TotalSteps      int
	StartedAt       time.Time

	completed atomic.Int64
	cancelled atomic.Bool

	mu         sync.RWMutex
	state      JobState
	err        error
	finishedAt time.Time
}

func NewExtractionJob(interval float64, scale int, format Format, duration float64) *ExtractionJob {
	return &ExtractionJob{
		IntervalSeconds: interval,
		ScaleFactor:     scale,
		Format:          format,
		Duration:        duration,
		TotalSteps:      TotalSteps(duration, interval),
		StartedAt:       time.Now().UTC(),
		state:           JobStateRunning,
	}
}

func (j *ExtractionJob) CompletedSteps() int {
	return int(j.completed.Load())
}

// Advance records one appended frame and returns the new progress.
func (j *ExtractionJob) Advance() Progress {
	n := j.completed.Add(1)
	return NewProgress(int(n), j.TotalSteps)
}

func (j *ExtractionJob) Progress() Progress {
	return NewProgress(j.CompletedSteps(), j.TotalSteps)
}

// Cancel is idempotent. It reports whether this call set the flag.
func (j *ExtractionJob) Cancel() bool {
	return j.cancelled.CompareAndSwap(false, true)
}

func (j *ExtractionJob) Cancelled() bool {
	return j.cancelled.Load()
}

func (j *ExtractionJob) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *ExtractionJob) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Finish moves the job to a terminal state. Later calls are ignored.
func (j *ExtractionJob) Finish(state JobState, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = state
	j.err = err
	j.finishedAt = time.Now().UTC()
}

// ExtractionSnapshot is a point-in-time, serialisable view of a job.
type ExtractionSnapshot struct {
	State           JobState   `json:"state"`
	IntervalSeconds float64    `json:"interval_seconds"`
	ScaleFactor     int        `json:"scale_factor"`
	Format          Format     `json:"format"`
	Progress        Progress   `json:"progress"`
	FailureCategory string     `json:"failure_category,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func (j *ExtractionJob) Snapshot() ExtractionSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := ExtractionSnapshot{
		State:           j.state,
		IntervalSeconds: j.IntervalSeconds,
		ScaleFactor:     j.ScaleFactor,
		Format:          j.Format,
		Progress:        NewProgress(int(j.completed.Load()), j.TotalSteps),
		StartedAt:       j.StartedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
		s.FailureCategory = MediaErrorCategory(j.err)
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}
