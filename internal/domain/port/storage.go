package port

import (
	"context"
	"io"
)

// VideoStorage is what the worker needs from object storage: source videos
// in, frame archives out.
type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}

// VideoUploader stores a source video under objectKey for a later request.
type VideoUploader interface {
	UploadVideo(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}
