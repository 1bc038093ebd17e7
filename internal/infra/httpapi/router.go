// Package httpapi exposes a studio session and the video relay over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Studio is the session surface the handlers drive.
type Studio interface {
	Load(ctx context.Context, ref usecase.SourceRef) (usecase.SourceInfo, error)
	Info() (usecase.SourceInfo, error)
	Settings() usecase.Settings
	UpdateSettings(patch usecase.Settings) (usecase.Settings, error)
	Seek(ctx context.Context, ts float64) (usecase.SourceInfo, error)
	ExtractAll() (entity.ExtractionSnapshot, error)
	ExtractCurrent(ctx context.Context) (*entity.Frame, error)
	Cancel() bool
	Status() usecase.SessionStatus
	Frames() []usecase.FrameView
	Frame(id int64) (*entity.Frame, error)
	DeleteFrame(id int64) bool
	ToggleFrame(id int64) (bool, error)
	ToggleAll() bool
	DeleteSelected() (int, error)
	WriteArchive(ctx context.Context, w io.Writer, selectedOnly bool) error
	Reset(ctx context.Context) error
}

// Fetcher opens a remote video for streaming.
type Fetcher interface {
	Open(ctx context.Context, target, rangeHeader string) (*http.Response, error)
}

type Options struct {
	// UploadDir receives uploaded videos for the lifetime of the session.
	UploadDir      string
	MaxUploadBytes int64
}

// NewRouter wires the API. A nil studio mounts only the relay.
func NewRouter(studio Studio, fetcher Fetcher, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), cors())

	if opts.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = min(opts.MaxUploadBytes, 32<<20)
	}

	relay := &relayHandler{fetcher: fetcher, logger: logger}
	r.GET("/relay", relay.serve)
	r.GET("/proxy", relay.serve)

	if studio == nil {
		return r
	}

	h := &studioHandler{studio: studio, opts: opts, logger: logger}
	api := r.Group("/api")
	{
		api.POST("/video/upload", h.upload)
		api.POST("/video/url", h.loadURL)
		api.GET("/video", h.info)
		api.POST("/video/seek", h.seek)

		api.GET("/settings", h.settings)
		api.PUT("/settings", h.updateSettings)

		api.POST("/extract/all", h.extractAll)
		api.POST("/extract/current", h.extractCurrent)
		api.POST("/extract/cancel", h.cancel)
		api.GET("/extract/status", h.status)

		api.GET("/frames", h.frames)
		api.GET("/frames/:id", h.downloadFrame)
		api.DELETE("/frames/:id", h.deleteFrame)
		api.POST("/frames/:id/toggle", h.toggleFrame)

		api.POST("/selection/toggle-all", h.toggleAll)
		api.DELETE("/selection", h.deleteSelected)

		api.GET("/archive", h.archive)
		api.POST("/reset", h.reset)
	}
	return r
}
