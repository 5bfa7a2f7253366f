package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/fetch"
	"github.com/ternarybob/quaero-index/internal/githubsrc"
	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/proxypool"
	"github.com/ternarybob/quaero-index/internal/worksource"
)

// originSource is satisfied by both internal/worksource.Source (the
// archive-backed primary path) and internal/githubsrc.Source (the
// token-backed fallback used when no archive file is configured).
type originSource interface {
	NextBatch(ctx context.Context) ([]models.Origin, error)
}

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var configFiles configPaths
	fs.Var(&configFiles, "config", "configuration file path (repeatable)")
	fs.Var(&configFiles, "c", "configuration file path (shorthand)")

	var proxyPaths configPaths
	fs.Var(&proxyPaths, "proxies", "proxy list file path (repeatable)")

	offset := fs.Int("offset", 0, "row offset for this instance's slice (0 = primary instance)")
	limit := fs.Int("limit", 0, "row limit for this instance's slice")
	full := fs.Bool("full", false, "ignore offset/limit and process the entire table")
	minDate := fs.String("min-date", "", "only include origins at or after this date (YYYY-MM-DD)")
	verbose := fs.Bool("verbose", false, "enable verbose fetch logging")
	archive := fs.String("archive", "", "path to the columnar origin-URL archive (overrides config)")
	_ = fs.Parse(args)

	config, err := loadConfig(configFiles)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("failed to load configuration")
		return 1
	}

	if *archive != "" {
		config.WorkSource.ArchivePath = *archive
	}
	common.ApplyFlagOverrides(config, *offset, *limit, *full, *minDate, proxyPaths, *verbose)

	logger := common.SetupLogger(config)
	defer common.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("interrupt received, draining in-flight fetches before exit")
		cancel()
	}()

	pool := proxypool.NewPool(config.Proxy.InitialEMAMS, config.Proxy.PenaltyMS).WithRateLimit(config.Proxy.RatePerSecond)
	if len(config.Proxy.Paths) > 0 {
		if err := pool.Load(config.Proxy.Paths...); err != nil {
			logger.Fatal().Err(err).Msg("failed to load proxy list")
			return 1
		}
		logger.Info().Int("proxies", pool.Len()).Msg("loaded proxy pool")
	}

	engine := fetch.NewEngine(config.Fetch, pool, config.ReadmesDir, logger)

	source, closer, err := buildOriginSource(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build origin source")
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}

	var success, skipped, errorMarker, dispatched atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxInt(config.Fetch.Concurrency, 1))

batchLoop:
	for {
		if ctx.Err() != nil {
			break
		}

		batch, err := source.NextBatch(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to read next batch of origins")
			break
		}
		if len(batch) == 0 {
			break
		}

		for _, origin := range batch {
			origin := origin

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break batchLoop
			}

			dispatched.Add(1)
			g.Go(func() error {
				defer func() { <-sem }()
				outcome, fetchErr := fetchOne(gctx, engine, origin)
				switch outcome {
				case fetch.OutcomeSuccess:
					success.Add(1)
				case fetch.OutcomeErrorMarker:
					errorMarker.Add(1)
				case fetch.OutcomeSkipped:
					skipped.Add(1)
				}
				if fetchErr != nil {
					logger.Warn().Err(fetchErr).Str("origin", origin.URL).Msg("fetch attempt recorded as error marker")
				}
				// Per-item failures never abort the group (spec.md §7
				// propagation policy: workers record and continue).
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("fetch group returned an unexpected error")
	}

	logger.Info().
		Int64("dispatched", dispatched.Load()).
		Int64("success", success.Load()).
		Int64("skipped", skipped.Load()).
		Int64("error_marker", errorMarker.Load()).
		Msg("fetch run complete")

	return 0
}

// fetchOne consults the engine's durable skip check before dispatching a
// fresh fetch, so an interrupted prior run never refetches a README that
// already succeeded on disk.
func fetchOne(ctx context.Context, engine *fetch.Engine, origin models.Origin) (fetch.Outcome, error) {
	if owner, repo, ok := origin.OwnerRepo(); ok {
		if done, err := engine.Skip(owner, repo); err == nil && done {
			return fetch.OutcomeSkipped, nil
		}
	}
	return engine.Fetch(ctx, origin)
}

// buildOriginSource prefers the archive-backed Work Source; when no
// archive path is configured and a GitHub token is available, it falls
// back to the GitHub repository-search source instead (spec.md §4.3
// expansion).
func buildOriginSource(ctx context.Context, config *common.Config, logger arbor.ILogger) (originSource, *worksource.CursorStore, error) {
	if config.WorkSource.ArchivePath != "" {
		store, err := worksource.OpenCursorStore(config.WorkSource.CursorDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open cursor store: %w", err)
		}
		src, err := worksource.NewSource(ctx, config.WorkSource, store)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("build work source: %w", err)
		}
		return src, store, nil
	}

	if config.GitHub.Token == "" {
		return nil, nil, fmt.Errorf("no archive path configured and GITHUB_TOKEN is unset: provide one of the two origin sources")
	}

	logger.Info().Msg("no archive configured, falling back to the GitHub repository-search origin source")
	src, err := githubsrc.NewSource(config.GitHub.Token, "")
	if err != nil {
		return nil, nil, err
	}
	return src, nil, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
