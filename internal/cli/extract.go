package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/gallery"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/raster"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/spf13/cobra"
)

var (
	extractSettings settingsFlags
	extractOut      string
	extractZip      string
	extractQuiet    bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file-or-url>",
	Short: "Extract frames at a fixed interval",
	Long: `Extract one frame every --interval seconds, from the start of the video
up to its end, and write them to a directory or a zip archive.

Interrupting with Ctrl-C stops after the current frame and keeps what was
captured.

Examples:
  framegrab extract clip.mp4
  framegrab extract clip.mp4 --interval 0.5 --scale 2 --format jpeg
  framegrab extract "https://www.dropbox.com/s/abc/clip.mp4?dl=0" --zip frames.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractSettings.register(extractCmd)
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "frames", "output directory")
	extractCmd.Flags().StringVar(&extractZip, "zip", "", "write a zip archive instead of separate files")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "do not print progress")
}

func runExtract(cmd *cobra.Command, args []string) error {
	settings, err := extractSettings.apply(configSettings())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, name, err := openSource(ctx, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	store := gallery.NewStore()
	seq := usecase.NewSequencer(raster.NewSink(cfg.FFmpegPath, log), store, nil, log)

	errOut := cmd.ErrOrStderr()
	job, err := seq.Start(ctx, src, usecase.ExtractionRequest{
		IntervalSeconds: settings.IntervalSeconds,
		ScaleFactor:     settings.ScaleFactor,
		Format:          settings.Format,
		OnProgress: func(p entity.Progress) {
			if !extractQuiet {
				fmt.Fprintf(errOut, "\r%s: %d/%d frames (%d%%)", name, p.Completed, p.Total, p.Percent)
			}
		},
	})
	if err != nil {
		return err
	}
	if !extractQuiet && job.CompletedSteps() > 0 {
		fmt.Fprintln(errOut)
	}

	frames := store.Frames()
	defer store.Clear()

	out := cmd.OutOrStdout()
	switch job.State() {
	case entity.JobStateFailed:
		if len(frames) == 0 {
			return fmt.Errorf("extraction failed: %w", job.Err())
		}
		fmt.Fprintf(errOut, "extraction failed after %d frames: %v\n", len(frames), job.Err())
	case entity.JobStateCancelled:
		fmt.Fprintf(errOut, "extraction cancelled after %d frames\n", len(frames))
	}

	if len(frames) == 0 {
		fmt.Fprintln(out, "No frames extracted; the video is shorter than the interval.")
		return nil
	}

	return saveFrames(ctx, out, extractZip, extractOut, frames)
}

// saveFrames writes frames to zipPath when set, otherwise into dir. ctx is
// usually cancelled after Ctrl-C, so writing ignores its cancellation and
// the frames captured so far are kept.
func saveFrames(ctx context.Context, out io.Writer, zipPath, dir string, frames []*entity.Frame) error {
	if zipPath != "" {
		if err := writeZip(context.WithoutCancel(ctx), zipPath, frames); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d frames to %s\n", len(frames), zipPath)
		return nil
	}

	paths, err := writeFrames(dir, frames)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d frames to %s\n", len(paths), strings.TrimSuffix(dir, "/"))
	return nil
}
