package port

import "context"

// RequestPublisher enqueues extraction requests for the worker.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, msg []byte) error
}

// StatusPublisher reports job state changes and progress.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
