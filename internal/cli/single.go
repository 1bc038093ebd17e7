package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-frame-studio/internal/gallery"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/raster"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/spf13/cobra"
)

var (
	singleSettings settingsFlags
	singleAt       float64
	singleOut      string
)

var singleCmd = &cobra.Command{
	Use:   "single <file-or-url>",
	Short: "Capture one frame at a given time",
	Long: `Capture the frame at --at seconds. Times past the end of the video are
clamped to its duration.

Examples:
  framegrab single clip.mp4 --at 12.5
  framegrab single clip.mp4 --at 3 --scale 2 --format webp -o stills`,
	Args: cobra.ExactArgs(1),
	RunE: runSingle,
}

func init() {
	singleSettings.register(singleCmd)
	singleCmd.Flags().Float64Var(&singleAt, "at", 0, "timestamp in seconds")
	singleCmd.Flags().StringVarP(&singleOut, "out", "o", ".", "output directory")
}

func runSingle(cmd *cobra.Command, args []string) error {
	settings, err := singleSettings.apply(configSettings())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	src, _, err := openSource(ctx, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	at := max(singleAt, 0)
	at = min(at, src.Duration())
	if err := src.Seek(ctx, at); err != nil {
		return fmt.Errorf("seek to %.3fs: %w", at, err)
	}

	store := gallery.NewStore()
	defer store.Clear()
	seq := usecase.NewSequencer(raster.NewSink(cfg.FFmpegPath, log), store, nil, log)
	frame, err := seq.ExtractSingle(ctx, src, settings.ScaleFactor, settings.Format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(singleOut, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(singleOut, frame.FileName(0))
	if err := os.WriteFile(path, frame.Payload.Bytes(), 0644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
