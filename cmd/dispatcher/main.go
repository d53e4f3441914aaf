// Package main provides the dispatcher entry point. The dispatcher consumes
// the submit and crawl queues, drives submissions through the upstream sites
// on pooled bot accounts and mirrors problem and contest metadata.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/kv"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site/hdu"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site/scu"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/app"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/dispatcher"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting dispatcher", slog.String("env", cfg.AppEnv))

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := kv.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	if err := app.WaitForDeps(ctx, pool, rdb, logger); err != nil {
		slog.Error("dependencies never became ready", slog.Any("error", err))
		os.Exit(1)
	}

	ops := app.NewOpsServer(cfg, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	go func() {
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server error", slog.Any("error", err))
		}
	}()
	defer func() { _ = ops.Shutdown(context.Background()) }()

	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		slog.Error("accounts load failed", slog.Any("error", err))
		os.Exit(1)
	}

	var solver scu.CaptchaSolver
	if cfg.SCUCaptchaFile != "" {
		solver, err = scu.LoadHashTable(cfg.SCUCaptchaFile)
		if err != nil {
			slog.Error("captcha table load failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	registry := site.NewRegistry(accounts)
	registry.RegisterPractice(hdu.SiteName, hdu.NewClient)
	registry.RegisterContest(hdu.SiteName, hdu.NewContestClient)
	registry.RegisterPractice(scu.SiteName, func(ctx context.Context, cred config.Credential) (domain.SiteClient, error) {
		return scu.NewClient(ctx, cred, solver)
	})

	subRepo := postgres.NewSubmissionRepo(pool)
	problemRepo := postgres.NewProblemRepo(pool)
	contestRepo := postgres.NewContestRepo(pool)

	submitQueue := kv.NewSubmitQueue(rdb)
	crawlQueue := kv.NewCrawlQueue(rdb)
	marks := kv.NewRefreshMarks(rdb)

	submitSup := dispatcher.NewSubmitSupervisor(submitQueue, subRepo, registry, logger)
	submitSup.SetTimings(cfg.QueuePopTimeout, cfg.PoolIdleAge, cfg.PoolReapInterval)
	crawlSup := dispatcher.NewCrawlSupervisor(crawlQueue, problemRepo, contestRepo, registry, logger)
	crawlSup.SetTimings(cfg.QueuePopTimeout, cfg.PoolIdleAge, cfg.PoolReapInterval)

	fetchers := map[string]usecase.RecentContestFetcher{
		hdu.SiteName: hdu.GetRecentContest,
	}
	practiceSites := make([]string, 0, len(accounts.Normal))
	for siteName := range accounts.NormalBySite() {
		practiceSites = append(practiceSites, siteName)
	}
	refreshSvc := usecase.NewRefreshService(contestRepo, crawlQueue, marks, fetchers, practiceSites, logger)

	beat, err := app.StartBeat(ctx, cfg, refreshSvc, logger)
	if err != nil {
		slog.Error("beat start failed", slog.Any("error", err))
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := submitSup.Run(ctx); err != nil {
			slog.Error("submit supervisor exited", slog.Any("error", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := crawlSup.Run(ctx); err != nil {
			slog.Error("crawl supervisor exited", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	<-beat.Stop().Done()
	wg.Wait()
	slog.Info("dispatcher stopped")
}
