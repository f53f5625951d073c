// Command churnops runs the churn actions dashboard, the call dispatch
// service, and a terminal view of the risk classification.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyashahama/churn-actions-dashboard/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// cobra has already printed usage errors; runtime errors go to the log.
		slog.Error("fatal", "error", err)
		stop()
		os.Exit(1)
	}
}

// app carries what every subcommand needs after startup.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "churnops",
		Short: "Churn risk dashboard and outbound call dispatch",
		Long: `churnops classifies users by churn risk, summarizes the at-risk
cohort with a language model, and places retention calls.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cfg)
			slog.SetDefault(a.logger)
			a.logger.Debug("config loaded", "env", cfg.Env, "call_mode", cfg.CallMode)
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newDashboardCmd(a),
		newClassifyCmd(a),
	)
	return root
}

// newLogger returns JSON in production and text elsewhere.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// serveHTTP runs srv until ctx is cancelled, then gives in-flight requests up
// to 20 seconds to finish.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until either a signal arrives or the server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
