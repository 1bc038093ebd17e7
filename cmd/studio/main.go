package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/gallery"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/archive"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/config"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/httpapi"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/metrics"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/raster"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/relay"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-studio/internal/usecase"
	"github.com/fiapx/fiapx-frame-studio/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting framestudio studio")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, "framestudio-studio", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	fatalOnErr(os.MkdirAll(cfg.UploadDir, 0o755), "create upload dir")

	session := usecase.NewSession(
		ffmpeg.NewOpener(cfg.FFmpegPath, cfg.FFprobePath, log),
		raster.NewSink(cfg.FFmpegPath, log),
		gallery.NewStore(),
		archive.NewZipWriter(),
		usecase.Settings{
			IntervalSeconds: cfg.DefaultIntervalSeconds,
			ScaleFactor:     cfg.DefaultScaleFactor,
			Format:          cfg.Format(),
		},
		log,
	)

	router := httpapi.NewRouter(session, relay.New(cfg.RelayTimeout, log), httpapi.Options{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.StudioPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error {
		if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return nil
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("studio http server starting", zap.Int("port", cfg.StudioPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down studio")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.Close(shutdownCtx); err != nil {
			log.Warn("session close", zap.Error(err))
		}
		metricsSrv.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("studio stopped with error", zap.Error(err))
		return
	}
	log.Info("framestudio studio stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
