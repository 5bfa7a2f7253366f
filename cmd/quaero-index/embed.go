package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/batchstate"
	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/embedproviders"
	"github.com/ternarybob/quaero-index/internal/embedproviders/batch"
	"github.com/ternarybob/quaero-index/internal/embedproviders/realtime"
	"github.com/ternarybob/quaero-index/internal/itemloader"
	"github.com/ternarybob/quaero-index/internal/orchestrator"
	"github.com/ternarybob/quaero-index/internal/vectorstore"
)

func runEmbed(args []string) int {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	var configFiles configPaths
	fs.Var(&configFiles, "config", "configuration file path (repeatable)")
	fs.Var(&configFiles, "c", "configuration file path (shorthand)")

	provider := fs.String("provider", "", "embedding provider: deepinfra | nebius | nebius-batch (overrides config)")
	keys := fs.Int("keys", 0, "number of API keys configured for round-robin (overrides config)")
	chunk := fs.Int("chunk", 0, "outer file-chunk size dispatched per iteration (overrides config)")
	parallel := fs.Int("parallel", 0, "batch driver concurrent-chunk parallelism (overrides config)")
	_ = fs.Parse(args)

	config, err := loadConfig(configFiles)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("failed to load configuration")
		return 1
	}

	if *provider != "" {
		config.Embed.Provider = *provider
	}
	if *keys > 0 {
		config.Embed.Keys = *keys
	}
	if *parallel > 0 {
		config.Embed.BatchParallel = *parallel
	}

	logger := common.SetupLogger(config)
	defer common.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("interrupt received, finishing the in-flight chunk before exit")
		cancel()
	}()

	apiKeys, err := common.ResolveAPIKeys(config.Embed.Provider, config.Embed.Keys)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve embedding API keys")
		return 1
	}
	rotator := embedproviders.NewKeyRotator(apiKeys)

	store, err := vectorstore.Open(config.VectorStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to the vector store")
		return 1
	}
	defer store.Close()

	loader := itemloader.NewLoader(config.ReadmesDir, 16)

	outerChunkSize := config.Embed.BatchChunkSize * config.Embed.BatchParallel * 2
	if *chunk > 0 {
		outerChunkSize = *chunk
	}

	orchConfig := orchestrator.Config{
		ReadmesDir:      config.ReadmesDir,
		Branches:        config.Fetch.Branches,
		OuterChunkSize:  outerChunkSize,
		PricePerMTokens: config.Embed.PricePerMTokens,
	}

	var (
		driver  orchestrator.ChunkDriver
		resumer orchestrator.Resumer
	)

	switch config.Embed.Provider {
	case "nebius-batch":
		batchProvider := batch.NewOpenAICompatibleProvider("nebius", batch.OpenAICompatibleConfig{
			BaseURL:    resolveBaseURL(config.Embed),
			Model:      config.Embed.Model,
			Dimensions: config.Embed.Dimension,
		})

		state, err := batchstate.Open(config.Embed.BatchStateDBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open batch state store")
			return 1
		}
		defer state.Close()

		batchDriver := batch.New(batch.Config{
			ChunkSize:     config.Embed.BatchChunkSize,
			Parallel:      config.Embed.BatchParallel,
			PollInterval:  config.Embed.PollInterval,
			MaxContentLen: config.Embed.MaxContentLen,
		}, batchProvider, rotator, state, store, logger)

		chunkDriver := orchestrator.NewBatchChunkDriver(batchDriver)
		driver = chunkDriver
		resumer = chunkDriver
		orchConfig.ResumeAPIKey = rotator.Next()

	case "nebius":
		realtimeProvider := embedproviders.NewOpenAICompatibleProvider("nebius", embedproviders.OpenAICompatibleConfig{
			BaseURL:         resolveBaseURL(config.Embed),
			Model:           config.Embed.Model,
			Dimensions:      config.Embed.Dimension,
			PricePerMTokens: config.Embed.PricePerMTokens,
		})
		driver = orchestrator.NewRealtimeChunkDriver(realtimeConfig(config.Embed), realtimeProvider, rotator, store, logger)

	case "deepinfra", "":
		deepInfraProvider := embedproviders.NewDeepInfraProvider(embedproviders.DeepInfraConfig{
			BaseURL:    resolveBaseURL(config.Embed),
			Model:      config.Embed.Model,
			Dimensions: config.Embed.Dimension,
		})
		driver = orchestrator.NewRealtimeChunkDriver(realtimeConfig(config.Embed), deepInfraProvider, rotator, store, logger)

	default:
		logger.Fatal().Str("provider", config.Embed.Provider).Msg("unknown embedding provider")
		return 1
	}

	orch := orchestrator.New(orchConfig, loader, store, driver, resumer, logger)

	stats, err := orch.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("embed run failed")
		return 1
	}

	logger.Info().
		Int("chunks_processed", stats.ChunksProcessed).
		Int("items_embedded", stats.ItemsEmbedded).
		Int("items_failed", stats.ItemsFailed).
		Float64("estimated_cost_usd", stats.EstimatedCostUSD).
		Bool("budget_exhausted", stats.BudgetExhausted).
		Msg("embed run complete")

	return 0
}

func realtimeConfig(cfg common.EmbedConfig) realtime.Config {
	return realtime.Config{
		Workers:       cfg.Workers,
		BatchSize:     cfg.BatchSize,
		MaxBatchChars: cfg.MaxBatchChars,
		MaxContentLen: cfg.MaxContentLen,
	}
}

// resolveBaseURL honors an explicit override, falling back to the
// provider's documented default endpoint.
func resolveBaseURL(cfg common.EmbedConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return common.DefaultEmbedBaseURL(cfg.Provider)
}
