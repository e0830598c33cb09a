package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"silk-catalog/internal/config"
	"silk-catalog/internal/logger"
	"silk-catalog/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	servePort   string
	openBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog HTTP API",
	Long: `Start the catalog HTTP API which provides:
- upload staging and image normalization
- draft, unfilled, live and trash bucket management
- static serving of the images tree`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().BoolVar(&openBrowser, "open", false, "Open the admin page in a browser once the server is up")
}

func gracefulShutdown(apiServer *server.Server, log *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// In-flight uploads get 30 seconds to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := apiServer.Close(); err != nil {
		log.Error("Error closing server resources", zap.Error(err))
	}

	log.Info("Server exiting")
	done <- true
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting catalog API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("media_root", cfg.Media.Root),
	)

	deps, err := server.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg, log, deps)

	done := make(chan bool, 1)
	go gracefulShutdown(srv, log, done)

	if openBrowser || cfg.Server.OpenBrowser {
		url := fmt.Sprintf("http://localhost:%s/admin.html", cfg.Server.Port)
		time.AfterFunc(1500*time.Millisecond, func() {
			if err := launchBrowser(url); err != nil {
				log.Warn("Could not open browser", zap.String("url", url), zap.Error(err))
			}
		})
	}

	log.Info("Server listening", zap.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		srv.Close()
		return fmt.Errorf("HTTP server error: %w", err)
	}

	<-done
	log.Info("Graceful shutdown complete")
	return nil
}

func launchBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
