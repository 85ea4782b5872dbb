package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"patscan/features/findings"
	"patscan/features/stats"
	"patscan/internal/app"
	"patscan/internal/checkpoint"
	"patscan/internal/clock"
	"patscan/internal/config"
	"patscan/internal/github"
	"patscan/internal/logger"
	"patscan/internal/middleware"
	"patscan/internal/notify"
	"patscan/internal/queries"
	"patscan/internal/ratelimit"
	"patscan/internal/scanner"
	syncer "patscan/internal/sync"
)

func main() {
	// Initialize structured logger
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Optional Backing Services (Postgres, NSQ)
	deps, err := app.Bootstrap(cfg)
	if err != nil {
		slog.Error("failed to bootstrap dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	clk := clock.New()
	httpClient := buildHTTPClient(cfg.Proxies)

	// 3. Checkpoint Store
	store, err := checkpoint.NewFileStore(checkpoint.StoreConfig{
		Dir:             cfg.DataPath,
		ScannedSHAsFile: cfg.ScannedSHAsFile,
		PathBlacklist:   cfg.FilePathBlacklist,
		RetentionDays:   cfg.DateRangeDays,
	}, clk)
	if err != nil {
		slog.Error("failed to open checkpoint store", "error", err)
		os.Exit(1)
	}

	// 4. Search Queries
	queryList, err := queries.Load(filepath.Join(cfg.DataPath, cfg.QueriesFile))
	if err != nil {
		slog.Error("failed to load queries", "error", err)
		os.Exit(1)
	}

	// 5. Search Client & Validator
	pool := github.NewTokenPool(cfg.GitHubTokens)
	limiter := ratelimit.NewCoordinator(clk, time.Duration(cfg.CooldownBasePenaltySec)*time.Second)
	client := github.NewClient(httpClient, pool, limiter, clk, github.ClientConfig{
		MaxPages:          cfg.SearchMaxPages,
		MaxRetriesPerPage: cfg.SearchRetriesPerPage,
	})
	validator := scanner.NewValidator(httpClient, clk, "")

	// 6. Findings Sink
	writer, err := findings.NewWriter(cfg.DataPath, clk.Now())
	if err != nil {
		slog.Error("failed to create findings writer", "error", err)
		os.Exit(1)
	}

	var repo findings.Repository
	var counter stats.FindingCounter
	if deps.DB != nil {
		pgRepo := findings.NewPostgresRepo(deps.DB)
		repo = pgRepo
		counter = pgRepo
	}

	var publisher findings.Publisher
	if deps.NSQProducer != nil {
		publisher = deps.NSQProducer
	}

	sink := findings.NewService(repo, writer, store, publisher, findings.ServiceConfig{
		BalancerEnabled: cfg.BalancerSyncEnabled,
		GPTLoadEnabled:  cfg.GPTLoadSyncEnabled,
		ValidTopic:      cfg.NSQValidTopic,
	})

	// 7. Notifier
	var notifier scanner.Notifier = notify.Noop{}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = notify.NewTelegram(httpClient, cfg.TelegramBotToken, cfg.TelegramChatID, clk)
	}

	// 8. Scanner
	scan := scanner.New(client, store, validator, sink, notifier, clk, queryList, scanner.Config{
		LookbackDays:   cfg.DateRangeDays,
		SliceWidthDays: cfg.DeepScanIntervalDays,
		ExcludeDork:    cfg.GlobalExcludeDork,
		SliceDelay:     time.Duration(cfg.SliceDelaySec) * time.Second,
		CycleSleep:     time.Duration(cfg.CycleSleepSec) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 9. Sync Batcher
	var balancer, gptLoad syncer.Pusher
	if cfg.BalancerSyncEnabled {
		balancer = syncer.NewBalancerClient(httpClient, cfg.BalancerURL, cfg.BalancerAuth)
	}
	if cfg.GPTLoadSyncEnabled {
		gptLoad = syncer.NewGPTLoadClient(httpClient, cfg.GPTLoadURL, cfg.GPTLoadAuth, cfg.GPTLoadGroupNames)
	}
	if balancer != nil || gptLoad != nil {
		batcher := syncer.NewBatcher(store, balancer, gptLoad, writer, time.Duration(cfg.SyncBatchIntervalSec)*time.Second)
		go batcher.Run(ctx)
	}

	// 10. Liveness & Stats Server
	statsHandler := stats.NewHandler(store, counter)
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(statsHandler.Healthz))
	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		slog.Info("stats server starting", "port", cfg.ServerPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("stats server failed", "error", err)
		}
	}()

	// 11. Crawl
	slog.Info("crawler starting", "tokens", pool.Size(), "queries", len(queryList))
	if err := scan.Run(ctx); err != nil {
		slog.Info("crawler stopped", "reason", err)
	}

	if err := store.Save(); err != nil {
		slog.Error("final checkpoint save failed", "error", err)
	}
}

// buildHTTPClient spreads requests across the configured proxies, one chosen
// at random per request.
func buildHTTPClient(proxies []string) *http.Client {
	client := &http.Client{Timeout: 30 * time.Second}
	if len(proxies) == 0 {
		return client
	}

	parsed := make([]*url.URL, 0, len(proxies))
	for _, p := range proxies {
		u, err := url.Parse(p)
		if err != nil {
			slog.Warn("skipping unparsable proxy", "proxy", p, "error", err)
			continue
		}
		parsed = append(parsed, u)
	}
	if len(parsed) == 0 {
		return client
	}

	client.Transport = &http.Transport{
		Proxy: func(*http.Request) (*url.URL, error) {
			return parsed[rand.Intn(len(parsed))], nil
		},
	}
	return client
}
