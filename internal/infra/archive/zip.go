package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
)

// ZipWriter packs gallery frames into a zip, one entry per frame named in
// capture order.
type ZipWriter struct{}

func NewZipWriter() *ZipWriter {
	return &ZipWriter{}
}

func (z *ZipWriter) WriteArchive(ctx context.Context, w io.Writer, frames []*entity.Frame) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to archive")
	}

	zipWriter := zip.NewWriter(w)

	for i, f := range frames {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			return ctx.Err()
		default:
		}

		if err := addFrameToZip(zipWriter, f, i+1); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add frame %d to zip: %w", f.ID, err)
		}
	}

	return zipWriter.Close()
}

func addFrameToZip(zw *zip.Writer, f *entity.Frame, seq int) error {
	data := f.Payload.Bytes()
	if data == nil {
		return fmt.Errorf("payload released")
	}

	modified := f.CreatedAt
	if modified.IsZero() {
		modified = time.Now()
	}
	header := &zip.FileHeader{
		Name:     f.FileName(seq),
		Method:   zip.Deflate,
		Modified: modified,
	}
	// Already-compressed formats gain nothing from deflate.
	if f.Format != entity.FormatPNG {
		header.Method = zip.Store
	}

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}
