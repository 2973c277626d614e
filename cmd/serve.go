package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/shotlog/internal/server"
	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the local dashboard until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}

	if err := r.connect(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go r.session.Initialize(ctx)

	router := server.NewRouter(r.session, r.workouts, r.jar, r.api.BaseURL(), r.logger)
	httpServer := server.New(cfg.Addr(), router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("serving dashboard at http://%v", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	dashboardURL := fmt.Sprintf("http://%s/workouts", cfg.Addr())
	r.writePlain("→ Dashboard: %s (Ctrl+C to stop)\n", dashboardURL)
	if cmd.Bool("open") {
		time.Sleep(100 * time.Millisecond)
		if err := shared.OpenBrowser(dashboardURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
		}
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}
	r.logger.Info("dashboard stopped")
	return nil
}
