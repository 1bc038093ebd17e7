package port

import "context"

// FailureNotice describes a job that will not be retried.
type FailureNotice struct {
	JobID      string
	VideoKey   string
	Error      string
	Category   string
	FrameCount int
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, to string, notice FailureNotice) error
}
