package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/archive"
)

// writeFrames stores each frame in dir under its numbered download name.
func writeFrames(dir string, frames []*entity.Frame) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	paths := make([]string, 0, len(frames))
	for i, f := range frames {
		path := filepath.Join(dir, f.FileName(i+1))
		if err := os.WriteFile(path, f.Payload.Bytes(), 0644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeZip(ctx context.Context, path string, frames []*entity.Frame) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := archive.NewZipWriter().WriteArchive(ctx, f, frames); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
