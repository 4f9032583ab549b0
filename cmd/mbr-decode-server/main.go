// Package main provides the mbr-decode server binary.
// The server exposes the HTTP decode, batch, and evaluation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
	"github.com/mbrdecode/mbr-decode/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mbr-decode-server",
		Short: "MBR Decode Server - HTTP decoding service",
		Long: `MBR Decode Server selects output sentences from candidate pools by
expected utility and serves the result over HTTP.

The server exposes:
  - POST /v1/decode    synchronous single-pool decoding
  - POST /v1/batch     asynchronous corpus decoding
  - GET  /v1/batch/:id batch job status and results
  - POST /v1/evaluate  corpus scoring
  - GET  /healthz      health and backend reachability
  - GET  /metrics      Prometheus-format metrics

Examples:
  mbr-decode-server                      # Start with defaults
  mbr-decode-server --port 9000          # Custom HTTP port
  mbr-decode-server -c decode.yaml -v    # Config file, debug logging`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().String("backend", "", "scoring backend URL (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mbr-decode-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	backendURL, _ := cmd.Flags().GetString("backend")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags beat config file and environment.
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}
	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}

	logLevel := cfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, cfg.Log.Format)

	log.Info("Starting MBR Decode Server",
		"version", version,
		"addr", cfg.Address(),
		"metric", cfg.Metric.Default,
		"decoder", cfg.Decoder.Default,
		"bus", cfg.Bus.Type,
		"cache", cfg.Cache.Type,
	)

	server.Version = version
	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
