package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ewfx/sradg-ai-innovators/internal/config"
	"github.com/ewfx/sradg-ai-innovators/internal/detect"
	"github.com/ewfx/sradg-ai-innovators/internal/features"
	"github.com/ewfx/sradg-ai-innovators/internal/llm"
	"github.com/ewfx/sradg-ai-innovators/internal/notify"
	"github.com/ewfx/sradg-ai-innovators/internal/persistence"
	"github.com/ewfx/sradg-ai-innovators/internal/pipeline"
	"github.com/ewfx/sradg-ai-innovators/internal/resolution"
	"github.com/ewfx/sradg-ai-innovators/internal/ticketing"
	"github.com/ewfx/sradg-ai-innovators/internal/transport/httpapi"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket anomaly service",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pipe, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, pipe)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildPipeline assembles the full pipeline from configuration. The returned
// cleanup closes any connections the wiring opened.
func buildPipeline(cfg config.Config) (*pipeline.Pipeline, func(), error) {
	closers := []func(){}
	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}

	vocab := features.NewVocabStore(cfg.Data.VocabPath)
	builder := features.NewBuilder(vocab)
	models := detect.NewStore(detect.Config{
		DetectorPath:  cfg.Data.DetectorPath,
		ClusterPath:   cfg.Data.ClusterPath,
		Contamination: cfg.Data.ContaminationRate,
		Clusters:      cfg.Data.NClusters,
		Seed:          cfg.Data.ModelSeed,
	})

	capability := buildCapability(cfg, &closers)

	resolver := resolution.NewResolver(ticketing.NewJiraClient(cfg.Jira))
	pipe := pipeline.New(
		builder,
		models,
		capability,
		resolver,
		persistence.NewCSVStore(),
		notify.NewEmailNotifier(cfg.Email),
		pipeline.Options{
			QuantityThreshold: cfg.Data.QuantityThreshold,
			Workers:           cfg.Data.LLMWorkers,
			OutputTemplate:    cfg.Data.AnomalyOutput,
			Recipient:         cfg.Email.Recipient,
		},
	)

	if cfg.Postgres.Enabled {
		repo, err := persistence.NewPostgresRepo(cfg.Postgres.DSN, cfg.Postgres.Timeout)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := repo.Close(); err != nil {
				log.Warn().Err(err).Msg("closing postgres repo")
			}
		})
		pipe.WithPostgres(repo)
	}

	return pipe, cleanup, nil
}

func buildCapability(cfg config.Config, closers *[]func()) llm.Capability {
	if !cfg.LLM.Enabled || cfg.LLM.APIKey == "" {
		log.Warn().Msg("llm capability disabled, anomalies will carry disabled sentinels")
		return llm.Disabled{}
	}

	var cache llm.Cache
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		*closers = append(*closers, func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("closing redis client")
			}
		})
		cache = llm.NewRedisCache(client, cfg.Cache.TTL)
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("llm cache backed by redis")
	default:
		cache = llm.NewMemoryCache()
	}

	return llm.WithCache(llm.NewOpenAIClient(cfg.LLM.OpenAIConfig), cache)
}
