package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/kozaktomas/face-verify/internal/web"
	"github.com/kozaktomas/face-verify/internal/web/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Verify web server.
The server hosts the browser capture page and the JSON API used to register
faces and verify new captures.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("allowed-origins", "", "Comma separated CORS origins (defaults to WEB_ALLOWED_ORIGINS)")
}

// resolveServeOptions resolves port, host and origins. Flags given on the
// command line take precedence over WEB_PORT, WEB_HOST and WEB_ALLOWED_ORIGINS.
func resolveServeOptions(cmd *cobra.Command) (int, string, []string) {
	port := intFlagOrEnv(cmd, "port", "WEB_PORT")
	host := stringFlagOrEnv(cmd, "host", "WEB_HOST")
	origins := stringFlagOrEnv(cmd, "allowed-origins", "WEB_ALLOWED_ORIGINS")
	return port, host, middleware.ParseOrigins(origins)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	port, host, origins := resolveServeOptions(cmd)
	server := web.NewServer(cfg, a.service, web.Options{
		Host:           host,
		Port:           port,
		AllowedOrigins: origins,
		Logger:         a.log,
	})

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Face Verify on http://%s:%d\n", host, port)
	fmt.Printf("Verifier: %s (%s, %s)\n", cfg.Verifier.Backend, cfg.Verifier.Model, cfg.Verifier.DistanceMetric)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
