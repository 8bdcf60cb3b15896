package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/playbook/internal/api"
	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the journey HTTP API",
	Long: `Run the HTTP API for journeys and onboarding. Callers identify themselves
with the X-User-ID and X-Organization-ID headers. Progress events stream from
/events and Prometheus metrics are served from /metrics.

Example:
  playbook serve                   # Listen on server.addr (default 127.0.0.1:8420)
  playbook serve --addr :8080      # Listen on port 8080
  playbook serve --watch           # Reload user templates when they change`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr  string
	serveWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload user templates on change (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The server always logs; --debug keeps the file logger instead.
	if logCleanup == nil {
		log.InitWriter(cmd.ErrOrStderr(), log.ParseLevel(os.Getenv("PLAYBOOK_LOG_LEVEL")))
	}

	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		return err
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Journeys:   rt.engine,
		Onboarding: rt.onboarding,
		Gatherer:   rt.gatherer,
		Tracer:     rt.tracing.Tracer(),
	})
	if err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("creating API handler: %w", err)
	}

	// Priority: --addr flag > server.addr config
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	server, err := api.NewServer(api.ServerConfig{Addr: addr, Handler: handler})
	if err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("creating API server: %w", err)
	}

	if serveWatch || cfg.Templates.Watch {
		stop := startTemplateWatcher(ctx, rt)
		defer stop()
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Playbook API listening on port %d\n", server.Port())
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	// Wait for shutdown signal or error
	var serveErr error
	select {
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatAPI, "Error stopping API server", err)
	}
	if err := rt.Close(shutdownCtx); err != nil {
		log.ErrorErr(log.CatAPI, "Error closing runtime", err)
	}

	_, _ = fmt.Fprintln(out, "Server stopped")
	return serveErr
}

// startTemplateWatcher reloads templates when the user directory changes.
// Watch failures are logged; the server keeps running without reloads.
func startTemplateWatcher(ctx context.Context, rt *runtime) func() {
	dir := rt.catalog.UserDir()
	if dir == "" {
		log.Warn(log.CatWatcher, "No user template directory to watch")
		return func() {}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatWatcher, "Failed to create user template directory", err, "dir", dir)
		return func() {}
	}

	w, err := watcher.New(watcher.DefaultConfig(dir))
	if err != nil {
		log.ErrorErr(log.CatWatcher, "Failed to create template watcher", err, "dir", dir)
		return func() {}
	}
	go func() {
		if err := w.Run(ctx, rt.ReloadTemplates); err != nil {
			log.ErrorErr(log.CatWatcher, "Template watcher stopped", err, "dir", dir)
		}
	}()
	return func() {
		if err := w.Stop(); err != nil {
			log.ErrorErr(log.CatWatcher, "Failed to stop template watcher", err)
		}
	}
}
