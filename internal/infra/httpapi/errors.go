package httpapi

import (
	"errors"
	"net/http"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/urlresolve"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidInterval),
		errors.Is(err, usecase.ErrInvalidScale),
		errors.Is(err, usecase.ErrUnsupportedFormat),
		errors.Is(err, usecase.ErrNoSelection),
		errors.Is(err, urlresolve.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrFrameNotFound),
		errors.Is(err, usecase.ErrNoFrames):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrBusy),
		errors.Is(err, usecase.ErrSourceNotLoaded),
		errors.Is(err, usecase.ErrSourceNotReady):
		return http.StatusConflict
	case errors.Is(err, urlresolve.ErrPlatformRestricted),
		entity.MediaErrorCategory(err) != "":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{
		Error:    err.Error(),
		Category: entity.MediaErrorCategory(err),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func tooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "video file is too large"})
}
