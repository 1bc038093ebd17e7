package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/urlresolve"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/spf13/cobra"
)

// resolveLocation turns a CLI argument into something ffmpeg can open and
// a display name. http(s) arguments go through the share link resolver.
func resolveLocation(arg string) (location, name string, err error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		location, err = urlresolve.Resolve(arg)
		if err != nil {
			return "", "", err
		}
		return location, urlresolve.FileName(arg), nil
	}

	if _, err := os.Stat(arg); err != nil {
		return "", "", fmt.Errorf("video file: %w", err)
	}
	return arg, filepath.Base(arg), nil
}

func openSource(ctx context.Context, arg string) (*ffmpeg.Source, string, error) {
	location, name, err := resolveLocation(arg)
	if err != nil {
		return nil, "", err
	}
	src, err := ffmpeg.NewOpener(cfg.FFmpegPath, cfg.FFprobePath, log).OpenSource(ctx, location)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", name, err)
	}
	return src, name, nil
}

// settingsFlags are the extraction flags shared by several commands. Zero
// values fall back to the configured defaults.
type settingsFlags struct {
	interval float64
	scale    int
	format   string
}

func (f settingsFlags) apply(defaults usecase.Settings) (usecase.Settings, error) {
	s := defaults
	if f.interval != 0 {
		s.IntervalSeconds = f.interval
	}
	if f.scale != 0 {
		s.ScaleFactor = f.scale
	}
	if f.format != "" {
		format, err := entity.ParseFormat(f.format)
		if err != nil {
			return usecase.Settings{}, err
		}
		s.Format = format
	}
	if !(s.IntervalSeconds > 0) {
		return usecase.Settings{}, usecase.ErrInvalidInterval
	}
	if s.ScaleFactor < 1 {
		return usecase.Settings{}, usecase.ErrInvalidScale
	}
	return s, nil
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64VarP(&f.interval, "interval", "i", 0, "seconds between frames (default from EXTRACT_INTERVAL_SECONDS)")
	cmd.Flags().IntVarP(&f.scale, "scale", "s", 0, "upscale factor (default from EXTRACT_SCALE_FACTOR)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "png, jpeg or webp (default from EXTRACT_FORMAT)")
}

func configSettings() usecase.Settings {
	return usecase.Settings{
		IntervalSeconds: cfg.DefaultIntervalSeconds,
		ScaleFactor:     cfg.DefaultScaleFactor,
		Format:          cfg.Format(),
	}
}
