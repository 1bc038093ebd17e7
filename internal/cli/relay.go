package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-frame-studio/internal/infra/httpapi"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var relayPort int

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the CORS video relay on its own",
	Long: `Serve GET /relay?url=<video> (also /proxy) so browser front ends can load
videos from hosts that do not send CORS headers.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().IntVarP(&relayPort, "port", "p", 3001, "listen port")
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", relayPort),
		Handler:           httpapi.NewRouter(nil, relay.New(cfg.RelayTimeout, log), httpapi.Options{}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", zap.Int("port", relayPort))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
