package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(id int64, ts float64, payload string) *entity.Frame {
	return &entity.Frame{
		ID:               id,
		TimestampSeconds: ts,
		Width:            640,
		Height:           360,
		Scale:            1,
		Format:           entity.FormatPNG,
		Payload:          entity.NewBlob([]byte(payload)),
	}
}

func TestWriteArchive(t *testing.T) {
	frames := []*entity.Frame{frame(1, 0.5, "first"), frame(2, 1.5, "second")}

	var buf bytes.Buffer
	require.NoError(t, NewZipWriter().WriteArchive(context.Background(), &buf, frames))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "frame_0001_0-00.500_640x360.png", zr.File[0].Name)
	assert.Equal(t, "frame_0002_0-01.500_640x360.png", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
}

func TestWriteArchiveEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewZipWriter().WriteArchive(context.Background(), &buf, nil))
}

func TestWriteArchiveReleasedPayload(t *testing.T) {
	f := frame(1, 0, "x")
	f.Payload.Release()
	var buf bytes.Buffer
	assert.Error(t, NewZipWriter().WriteArchive(context.Background(), &buf, []*entity.Frame{f}))
}

func TestWriteArchiveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := NewZipWriter().WriteArchive(ctx, &buf, []*entity.Frame{frame(1, 0, "x")})
	assert.ErrorIs(t, err, context.Canceled)
}
