package port

import (
	"context"
	"io"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
)

type Archiver interface {
	WriteArchive(ctx context.Context, w io.Writer, frames []*entity.Frame) error
}
