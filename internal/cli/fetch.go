package cli

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"
)

var fetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch <archive-key>",
	Short: "Download a frame archive produced by the worker",
	Long: `Download the zip named by the archive_key of a completed job.

Examples:
  framegrab fetch alice/frames_5b0c7c1e-3f7e-4f53-9d54-1f0f8b7d2a11.zip
  framegrab fetch alice/frames_5b0c7c1e-3f7e-4f53-9d54-1f0f8b7d2a11.zip -o clip.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "destination file (default: the key's base name)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	key := args[0]
	dest := fetchOut
	if dest == "" {
		dest = path.Base(key)
	}

	storage, err := newStorage()
	if err != nil {
		return err
	}
	if err := storage.DownloadArchive(cmd.Context(), key, dest); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}
