package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/config"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/email"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-frame-studio/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/raster"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/fiapx/fiapx-frame-studio/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("framestudio worker stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("framestudio worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting framestudio worker")

	tp, err := tracing.InitTracer(ctx, "framestudio-worker", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	if err != nil {
		return err
	}
	if err := storage.EnsureBuckets(ctx); err != nil {
		return err
	}

	// Publishing gets its own connection so a busy consumer channel
	// never blocks status updates.
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()
	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	extract := usecase.NewProcessExtractionUseCase(
		postgres.NewJobRepository(pool),
		storage,
		ffmpeg.NewOpener(cfg.FFmpegPath, cfg.FFprobePath, log),
		raster.NewSink(cfg.FFmpegPath, log),
		archive.NewZipWriter(),
		rabbitmq.NewStatusPublisher(pub),
		rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
		log,
		usecase.ProcessExtractionConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
			Defaults: usecase.Settings{
				IntervalSeconds: cfg.DefaultIntervalSeconds,
				ScaleFactor:     cfg.DefaultScaleFactor,
				Format:          cfg.Format(),
			},
			NotifyTo: cfg.NotificationTo,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQExtractionQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, extract.Execute, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, pool.Ping, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consuming extraction requests",
			zap.String("queue", cfg.RabbitMQExtractionQueue),
			zap.Int("workers", cfg.WorkerCount),
		)
		return consumer.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
