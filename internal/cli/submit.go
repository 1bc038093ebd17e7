package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	miniostorage "github.com/fiapx/fiapx-frame-studio/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	submitSettings settingsFlags
	submitUser     string
	submitEmail    string
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Queue a video for the extraction worker",
	Long: `Upload a local video to object storage and enqueue an extraction request.
The worker stores the resulting zip in the archive bucket and reports progress
on the status queue.

Examples:
  framegrab submit clip.mp4 --user alice --email alice@example.com
  framegrab submit clip.mp4 --user alice --interval 1 --format jpeg`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitSettings.register(submitCmd)
	submitCmd.Flags().StringVarP(&submitUser, "user", "u", "cli", "owner of the job")
	submitCmd.Flags().StringVar(&submitEmail, "email", "", "address notified if the job fails")
}

// newRequest builds the queue message. Unset flags are left zero so the
// worker applies its own defaults.
func newRequest(videoKey string, size int64, flags settingsFlags) (entity.ExtractionRequestMessage, error) {
	msg := entity.ExtractionRequestMessage{
		JobID:           uuid.New(),
		UserID:          submitUser,
		VideoKey:        videoKey,
		FileSize:        size,
		UserEmail:       submitEmail,
		IntervalSeconds: flags.interval,
		ScaleFactor:     flags.scale,
	}
	if flags.format != "" {
		format, err := entity.ParseFormat(flags.format)
		if err != nil {
			return msg, err
		}
		msg.Format = format
	}
	if flags.interval < 0 {
		return msg, fmt.Errorf("interval must be positive")
	}
	if flags.scale < 0 {
		return msg, fmt.Errorf("scale must be at least 1")
	}
	return msg, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	storage, err := newStorage()
	if err != nil {
		return err
	}
	if err := storage.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("ensure buckets: %w", err)
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	msg, err := submitVideo(ctx, storage, rabbitmq.NewRequestPublisher(pub), args[0], submitSettings)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%s)\n", msg.JobID, msg.VideoKey)
	return nil
}

// submitVideo uploads the file at path under the user's prefix and enqueues
// a request for it.
func submitVideo(ctx context.Context, up port.VideoUploader, pub port.RequestPublisher, path string, flags settingsFlags) (entity.ExtractionRequestMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return entity.ExtractionRequestMessage{}, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return entity.ExtractionRequestMessage{}, fmt.Errorf("stat video: %w", err)
	}

	ext := filepath.Ext(path)
	key := fmt.Sprintf("%s/%s%s", submitUser, uuid.NewString(), ext)
	msg, err := newRequest(key, info.Size(), flags)
	if err != nil {
		return msg, err
	}

	if err := up.UploadVideo(ctx, key, f, info.Size(), videoContentType(ext)); err != nil {
		return msg, err
	}
	log.Info("video uploaded", zap.String("video_key", key), zap.Int64("size", info.Size()))

	body, err := json.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("marshal request: %w", err)
	}
	if err := pub.PublishRequest(ctx, body); err != nil {
		return msg, fmt.Errorf("publish request: %w", err)
	}
	return msg, nil
}

// videoContentType covers the common containers, which the platform mime
// tables often lack.
func videoContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".ogg", ".ogv":
		return "video/ogg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func newStorage() (*miniostorage.Storage, error) {
	return miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
}
