package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nyashahama/churn-actions-dashboard/internal/ai"
	"github.com/nyashahama/churn-actions-dashboard/internal/config"
	"github.com/nyashahama/churn-actions-dashboard/internal/dataset"
	"github.com/nyashahama/churn-actions-dashboard/internal/events"
)

// openSource picks Postgres when DATABASE_URL is set and the data file
// otherwise. The returned close func is never nil.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dataset.Source, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("data: reading file", "path", cfg.DataPath)
		return dataset.Open(cfg.DataPath), func() {}, nil
	}

	pool, err := dataset.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("data: reading postgres", "table", cfg.DataTable)
	return dataset.NewPostgresSource(pool, cfg.DataTable), func() { pool.Close() }, nil
}

// newCompleter picks the LLM provider. OpenAI is primary; Anthropic is the
// fallback when ANTHROPIC_API_KEY is also set. With no key at all it fails,
// which stops the dashboard at startup.
func newCompleter(cfg *config.Config, logger *slog.Logger) (ai.Completer, error) {
	switch {
	case cfg.OpenAIAPIKey != "" && cfg.AnthropicAPIKey != "":
		primary, err := ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		secondary, err := ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return nil, err
		}
		logger.Info("ai: using OpenAI with Anthropic fallback", "model", cfg.OpenAIModel)
		return ai.NewFallbackCompleter(primary, secondary, logger), nil
	case cfg.OpenAIAPIKey != "":
		logger.Info("ai: using OpenAI only", "model", cfg.OpenAIModel)
		return ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case cfg.AnthropicAPIKey != "":
		logger.Info("ai: using Anthropic only")
		return ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	default:
		return nil, fmt.Errorf("set OPENAI_API_KEY or ANTHROPIC_API_KEY: %w", ai.ErrMissingAPIKey)
	}
}

// newPublisher returns a Kafka publisher when brokers are configured.
func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Noop{}
	}
	logger.Info("events: publishing to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
