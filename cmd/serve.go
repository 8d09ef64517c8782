package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glowus/planpress/internal/config"
	"github.com/glowus/planpress/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planpress HTTP server",
	Long: `Starts the HTTP API: plan management, pipeline start/cancel and the
SSE progress stream. Jobs interrupted by a previous shutdown are marked
failed on boot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, library, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if dir := viper.GetString(config.KeyTemplatesDir); dir != "" {
			go func() {
				if err := library.Watch(ctx); err != nil {
					slog.Warn("template watcher stopped", "error", err)
				}
			}()
		}

		port := viper.GetInt(config.KeyServerPort)
		srv := server.New(application, port)

		var wg sync.WaitGroup
		errChan := make(chan error, 1)
		srv.Start(&wg, errChan)
		slog.Info("server listening", "port", port)

		select {
		case err := <-errChan:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		wg.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", config.DefaultServerPort, "HTTP listen port")
	_ = viper.BindPFlag(config.KeyServerPort, serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
}
