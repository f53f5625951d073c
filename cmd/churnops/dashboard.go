package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyashahama/churn-actions-dashboard/internal/calls"
	"github.com/nyashahama/churn-actions-dashboard/internal/dashboard"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
	"github.com/nyashahama/churn-actions-dashboard/internal/narrative"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Run the churn actions dashboard",
		Long: `Serves the operator dashboard: risk bucket counts, an LLM narrative of
the at-risk cohort, and per-user call actions dispatched through the call
service at VOICE_API_URL.

Fails at startup when no LLM API key is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := a.cfg, a.logger
			ctx := cmd.Context()

			completer, err := newCompleter(cfg, logger)
			if err != nil {
				return fmt.Errorf("summarizer: %w", err)
			}

			source, closeSource, err := openSource(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeSource()

			m := metrics.New(metrics.WithRuntimeCollectors())
			summarizer := narrative.New(completer, logger,
				narrative.WithMaxWords(cfg.SummaryMaxWords),
				narrative.WithMetrics(m),
			)
			client := calls.NewClient(cfg.VoiceAPIURL, cfg.DispatchTimeout)

			deps := dashboard.Deps{
				Source:     source,
				Narrator:   summarizer,
				Dispatcher: client,
				Metrics:    m,
			}
			if cfg.Interactive() {
				deps.Poller = client
			}
			ctrl := dashboard.NewController(deps, cfg.SummaryContext, logger)

			handler := dashboard.NewServer(ctrl, dashboard.NewMemorySessionStore(), m,
				dashboard.Config{Env: cfg.Env}, logger)

			srv := &http.Server{
				Addr:         ":" + cfg.DashboardPort,
				Handler:      handler,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 120 * time.Second, // a render waits on the LLM
				IdleTimeout:  120 * time.Second,
			}
			return serveHTTP(ctx, srv, logger)
		},
	}
}
