// Package cli provides the command-line interface for framegrab.
package cli

import (
	"fmt"

	"github.com/fiapx/fiapx-frame-studio/internal/infra/config"
	"github.com/fiapx/fiapx-frame-studio/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	logLevel string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "framegrab",
	Short: "Extract still frames from videos",
	Long: `Framegrab captures evenly spaced still frames from a local video file or
a direct video URL, optionally upscaled, as PNG, JPEG or WebP.

It can also run the CORS relay used by the studio and submit videos to the
extraction worker.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		log, err = logger.New(level)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the command named by os.Args.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from LOG_LEVEL)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(singleCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(fetchCmd)
}
