package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-frame-studio/internal/infra/urlresolve"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type studioHandler struct {
	studio Studio
	opts   Options
	logger *zap.Logger
}

type loadURLRequest struct {
	URL string `json:"url" binding:"required"`
}

type seekRequest struct {
	Time *float64 `json:"time" binding:"required"`
}

// multipartOverhead is the allowance for boundaries and part headers on
// top of MaxUploadBytes.
const multipartOverhead = 64 << 10

func (h *studioHandler) upload(c *gin.Context) {
	if limit := h.opts.MaxUploadBytes; limit > 0 {
		if c.Request.ContentLength > limit+multipartOverhead {
			tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}
	fh, err := c.FormFile("video")
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		tooLarge(c)
		return
	}
	if err != nil {
		badRequest(c, "video file is required")
		return
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "video/") {
		badRequest(c, "Please select a valid video file")
		return
	}
	if h.opts.MaxUploadBytes > 0 && fh.Size > h.opts.MaxUploadBytes {
		tooLarge(c)
		return
	}

	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		abortWithError(c, fmt.Errorf("create upload dir: %w", err))
		return
	}
	path := filepath.Join(h.opts.UploadDir, uuid.NewString()+filepath.Ext(fh.Filename))
	if err := c.SaveUploadedFile(fh, path); err != nil {
		abortWithError(c, fmt.Errorf("save upload: %w", err))
		return
	}

	info, err := h.studio.Load(c.Request.Context(), usecase.SourceRef{
		Location: path,
		Name:     filepath.Base(fh.Filename),
		Cleanup:  func() error { return os.Remove(path) },
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *studioHandler) loadURL(c *gin.Context) {
	var req loadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "URL parameter is required")
		return
	}

	location, err := urlresolve.Resolve(req.URL)
	if err != nil {
		abortWithError(c, err)
		return
	}
	info, err := h.studio.Load(c.Request.Context(), usecase.SourceRef{
		Location: location,
		Name:     urlresolve.FileName(req.URL),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *studioHandler) info(c *gin.Context) {
	info, err := h.studio.Info()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *studioHandler) seek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "time is required")
		return
	}
	info, err := h.studio.Seek(c.Request.Context(), *req.Time)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *studioHandler) settings(c *gin.Context) {
	c.JSON(http.StatusOK, h.studio.Settings())
}

func (h *studioHandler) updateSettings(c *gin.Context) {
	var patch usecase.Settings
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid settings")
		return
	}
	settings, err := h.studio.UpdateSettings(patch)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *studioHandler) extractAll(c *gin.Context) {
	snap, err := h.studio.ExtractAll()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

func (h *studioHandler) extractCurrent(c *gin.Context) {
	f, err := h.studio.ExtractCurrent(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, usecase.FrameView{Frame: f, FileName: f.FileName(0)})
}

func (h *studioHandler) cancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.studio.Cancel()})
}

func (h *studioHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.studio.Status())
}

func (h *studioHandler) frames(c *gin.Context) {
	c.JSON(http.StatusOK, h.studio.Frames())
}

func (h *studioHandler) downloadFrame(c *gin.Context) {
	id, ok := frameID(c)
	if !ok {
		return
	}
	f, err := h.studio.Frame(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	data := f.Payload.Bytes()
	if data == nil {
		abortWithError(c, usecase.ErrFrameNotFound)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.FileName(0)))
	c.Data(http.StatusOK, f.Format.ContentType(), data)
}

func (h *studioHandler) deleteFrame(c *gin.Context) {
	id, ok := frameID(c)
	if !ok {
		return
	}
	if !h.studio.DeleteFrame(id) {
		abortWithError(c, usecase.ErrFrameNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *studioHandler) toggleFrame(c *gin.Context) {
	id, ok := frameID(c)
	if !ok {
		return
	}
	selected, err := h.studio.ToggleFrame(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "selected": selected})
}

func (h *studioHandler) toggleAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"all_selected": h.studio.ToggleAll()})
}

func (h *studioHandler) deleteSelected(c *gin.Context) {
	n, err := h.studio.DeleteSelected()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// archive is buffered so a failure can still be reported as JSON.
func (h *studioHandler) archive(c *gin.Context) {
	selectedOnly, _ := strconv.ParseBool(c.Query("selected"))

	var buf bytes.Buffer
	if err := h.studio.WriteArchive(c.Request.Context(), &buf, selectedOnly); err != nil {
		abortWithError(c, err)
		return
	}

	name := "frames.zip"
	if selectedOnly {
		name = "frames_selected.zip"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (h *studioHandler) reset(c *gin.Context) {
	if err := h.studio.Reset(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func frameID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid frame id")
		return 0, false
	}
	return id, true
}
