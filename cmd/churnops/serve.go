package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyashahama/churn-actions-dashboard/internal/calls"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
	"github.com/nyashahama/churn-actions-dashboard/internal/telephony"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the call dispatch service (POST /call_user)",
		Long: `Runs the HTTP service that places outbound calls through Twilio.

Twilio credentials are checked on the first call, so the service starts
without them and answers 500 until they are configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := a.cfg, a.logger

			publisher := newPublisher(cfg, logger)
			defer func() {
				if err := publisher.Close(); err != nil {
					logger.Warn("events: close publisher", "error", err)
				}
			}()

			handler := calls.NewServer(calls.Deps{
				Caller:    telephony.NewTwilioCaller(cfg.TwilioAccountSID, cfg.TwilioAuthToken),
				Publisher: publisher,
				Results:   calls.NewMemoryResultStore(),
				Metrics:   metrics.New(metrics.WithRuntimeCollectors()),
			}, calls.Config{
				CallerNumber: cfg.TwilioCallerNumber,
				Voice:        telephony.Voice{Name: cfg.TwilioVoice, Language: cfg.TwilioLanguage},
				Mode:         cfg.CallMode,
				BaseURL:      cfg.BasePublicURL,
				AuthToken:    cfg.TwilioAuthToken,
			}, logger)

			srv := &http.Server{
				Addr:         ":" + cfg.CallServicePort,
				Handler:      handler,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}
			return serveHTTP(cmd.Context(), srv, logger)
		},
	}
}
