package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/fiapx/fiapx-frame-studio/internal/infra/metrics"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/urlresolve"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type relayHandler struct {
	fetcher Fetcher
	logger  *zap.Logger
}

func (h *relayHandler) serve(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		metrics.RelayRequestsTotal.WithLabelValues("400").Inc()
		badRequest(c, "URL parameter is required")
		return
	}

	if !urlresolve.IsDirectVideo(target) {
		h.logger.Debug("relay target has no video extension", zap.String("url", target))
	}

	resp, err := h.fetcher.Open(c.Request.Context(), target, c.GetHeader("Range"))
	if errors.Is(err, urlresolve.ErrInvalidURL) {
		metrics.RelayRequestsTotal.WithLabelValues("400").Inc()
		badRequest(c, "Invalid URL")
		return
	}
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("500").Inc()
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch video"})
		return
	}
	defer resp.Body.Close()

	for _, name := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(name); v != "" {
			c.Header(name, v)
		}
	}
	if c.Writer.Header().Get("Content-Type") == "" {
		c.Header("Content-Type", "video/mp4")
	}

	status := http.StatusOK
	if resp.StatusCode == http.StatusPartialContent {
		status = http.StatusPartialContent
	}
	metrics.RelayRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	c.Status(status)

	n, err := io.Copy(c.Writer, resp.Body)
	metrics.RelayBytesTotal.Add(float64(n))
	if err != nil {
		h.logger.Warn("relay stream interrupted", zap.Int64("bytes", n), zap.Error(err))
	}
}
