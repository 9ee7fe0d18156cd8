package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/api"
)

// newServeCmd creates the 'serve' subcommand, which exposes study lookups,
// background runs, health and metrics over HTTP until interrupted.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the harvester HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := a.Logger().Named("serve")

			port := a.Config().Server.Port
			// Cloud Run injects PORT.
			if env := os.Getenv("PORT"); env != "" {
				if p, convErr := strconv.Atoi(env); convErr == nil {
					port = p
				}
			}

			runs := api.NewRunManager(ctx, a.Run, api.WithProgress(a.Progress()))
			apiServer := api.NewServer(a, runs, a.Ready, a.Logger())
			srv := &http.Server{
				Addr:              net.JoinHostPort("", strconv.Itoa(port)),
				Handler:           apiServer.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.Int("port", port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutdown initiated")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			runs.Wait()
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	return cmd
}
