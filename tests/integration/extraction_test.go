package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/email"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/ffmpeg"
	miniostorage "github.com/fiapx/fiapx-frame-studio/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/raster"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/fiapx/fiapx-frame-studio/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

const (
	exchange     = "framestudio"
	requestQueue = "frames.extraction"
	statusQueue  = "frames.status"
	dlqQueue     = "frames.extraction.dlq"
)

// stack is a worker wired to throwaway Postgres, RabbitMQ and MinIO
// containers.
type stack struct {
	pool    *pgxpool.Pool
	storage *miniostorage.Storage
	conn    *amqp.Connection
}

func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(context.Background()) })
	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = minioContainer.Terminate(context.Background()) })
	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UploadBucket:  "uploads",
		ArchiveBucket: "frames",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	log, err := logger.New("debug")
	require.NoError(t, err)

	pub, err := rabbitmq.NewPublisher(conn, exchange)
	require.NoError(t, err)

	uc := usecase.NewProcessExtractionUseCase(
		postgres.NewJobRepository(pool),
		storage,
		ffmpeg.NewOpener("", "", log),
		raster.NewSink("", log),
		archive.NewZipWriter(),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, dlqQueue),
		email.NewSMTPNotifier("localhost", 1025, "test@test.local", log),
		log,
		usecase.ProcessExtractionConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
			Defaults:   usecase.DefaultSettings(),
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       requestQueue,
		Exchange:    exchange,
		DLQ:         dlqQueue,
		StatusQueue: statusQueue,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	go func() { _ = consumer.Start(consumerCtx) }()
	t.Cleanup(func() {
		consumerCancel()
		_ = consumer.Close()
	})
	time.Sleep(500 * time.Millisecond)

	return &stack{pool: pool, storage: storage, conn: conn}
}

func (s *stack) submit(t *testing.T, ctx context.Context, body []byte) {
	t.Helper()
	pub, err := rabbitmq.NewPublisher(s.conn, exchange)
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, rabbitmq.NewRequestPublisher(pub).PublishRequest(ctx, body))
}

// awaitTerminal reads status messages for jobID until one is terminal.
func (s *stack) awaitTerminal(t *testing.T, jobID uuid.UUID) (entity.ExtractionStatusMessage, []int) {
	t.Helper()
	ch, err := s.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	deliveries, err := ch.Consume(statusQueue, "", true, false, false, false, nil)
	require.NoError(t, err)

	var percents []int
	timeout := time.After(2 * time.Minute)
	for {
		select {
		case d := <-deliveries:
			var msg entity.ExtractionStatusMessage
			require.NoError(t, json.Unmarshal(d.Body, &msg))
			if msg.JobID != jobID {
				continue
			}
			if msg.Progress != nil {
				percents = append(percents, msg.Progress.Percent)
			}
			switch msg.Status {
			case entity.JobStatusCompleted, entity.JobStatusFailed, entity.JobStatusCancelled:
				return msg, percents
			}
		case <-timeout:
			t.Fatal("timeout waiting for terminal status message")
		}
	}
}

func makeVideo(t *testing.T) string {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not in PATH", bin)
		}
	}
	path := filepath.Join(t.TempDir(), "test.mp4")
	out, err := exec.Command("ffmpeg", "-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=10",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-y", path).CombinedOutput()
	if err != nil {
		t.Skipf("cannot render test video: %v: %s", err, out)
	}
	return path
}

func TestExtractionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	videoPath := makeVideo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s := startStack(t, ctx)

	videoKey := "testuser/test.mp4"
	data, err := os.ReadFile(videoPath)
	require.NoError(t, err)
	require.NoError(t, s.storage.UploadVideo(ctx, videoKey, bytes.NewReader(data), int64(len(data)), "video/mp4"))

	jobID := uuid.New()
	body, err := json.Marshal(entity.ExtractionRequestMessage{
		JobID:           jobID,
		UserID:          "testuser",
		VideoKey:        videoKey,
		FileSize:        int64(len(data)),
		IntervalSeconds: 0.5,
		ScaleFactor:     2,
		Format:          entity.FormatJPEG,
	})
	require.NoError(t, err)
	s.submit(t, ctx, body)

	status, percents := s.awaitTerminal(t, jobID)
	require.Equal(t, entity.JobStatusCompleted, status.Status, status.ErrorMessage)
	assert.Equal(t, 4, status.FrameCount)
	assert.Equal(t, "testuser/frames_"+jobID.String()+".zip", status.ArchiveKey)
	assert.Equal(t, []int{25, 50, 75, 100}, percents)

	archivePath := filepath.Join(t.TempDir(), "frames.zip")
	require.NoError(t, s.storage.DownloadArchive(ctx, status.ArchiveKey, archivePath))

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 4)
	for _, f := range zr.File {
		assert.True(t, strings.HasSuffix(f.Name, "_2x_640x480.jpeg"), f.Name)
	}

	var dbStatus, dbFormat string
	var dbFrameCount int
	err = s.pool.QueryRow(ctx,
		"SELECT status, frame_count, format FROM extraction_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbFrameCount, &dbFormat)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 4, dbFrameCount)
	assert.Equal(t, "jpeg", dbFormat)
}

func TestExtractionRejectsNonVideo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	makeVideo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	s := startStack(t, ctx)

	videoKey := "testuser/notes.mp4"
	text := []byte("definitely not a video")
	require.NoError(t, s.storage.UploadVideo(ctx, videoKey, bytes.NewReader(text), int64(len(text)), "video/mp4"))

	jobID := uuid.New()
	body, err := json.Marshal(entity.ExtractionRequestMessage{JobID: jobID, UserID: "testuser", VideoKey: videoKey})
	require.NoError(t, err)
	s.submit(t, ctx, body)

	status, _ := s.awaitTerminal(t, jobID)
	assert.Equal(t, entity.JobStatusFailed, status.Status)
	assert.Equal(t, "unsupported-format", status.ErrorCategory)

	ch, err := s.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	_, ok, err := ch.Get(dlqQueue, true)
	require.NoError(t, err)
	assert.True(t, ok, "permanent failures should reach the DLQ")
}

func TestExtractionMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s := startStack(t, ctx)

	s.submit(t, ctx, []byte(`{invalid json`))
	time.Sleep(2 * time.Second)

	ch, err := s.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	dlqMsg, ok, err := ch.Get(dlqQueue, true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))
}
