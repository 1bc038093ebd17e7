package entity

import (
	"context"
	"errors"
	"fmt"
)

// MediaErrorCode mirrors the media element error codes a decoder can report.
type MediaErrorCode int

const (
	MediaErrUnknown MediaErrorCode = iota
	MediaErrAborted
	MediaErrNetwork
	MediaErrDecode
	MediaErrSrcNotSupported
)

func (c MediaErrorCode) Category() string {
	switch c {
	case MediaErrAborted:
		return "aborted"
	case MediaErrNetwork:
		return "network"
	case MediaErrDecode:
		return "decode"
	case MediaErrSrcNotSupported:
		return "unsupported-format"
	}
	return "unknown"
}

func (c MediaErrorCode) Message() string {
	switch c {
	case MediaErrAborted:
		return "video loading was aborted"
	case MediaErrNetwork:
		return "a network error occurred while fetching the video"
	case MediaErrDecode:
		return "the video could not be decoded"
	case MediaErrSrcNotSupported:
		return "the video format is not supported; use MP4, WebM or OGG"
	}
	return "the video could not be loaded"
}

// MediaError is a source-level failure. It is terminal for a job and never
// retried automatically.
type MediaError struct {
	Code MediaErrorCode
	Err  error
}

func NewMediaError(code MediaErrorCode, err error) *MediaError {
	return &MediaError{Code: code, Err: err}
}

func (e *MediaError) Error() string {
	if e.Err == nil {
		return e.Code.Message()
	}
	return fmt.Sprintf("%s: %v", e.Code.Message(), e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// MediaErrorCategory returns the category of a wrapped MediaError, "aborted"
// for context cancellation and "" for anything else.
func MediaErrorCategory(err error) string {
	var me *MediaError
	if errors.As(err, &me) {
		return me.Code.Category()
	}
	if errors.Is(err, context.Canceled) {
		return MediaErrAborted.Category()
	}
	return ""
}
