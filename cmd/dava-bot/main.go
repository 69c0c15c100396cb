package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dava-bot/internal/cache"
	"dava-bot/internal/config"
	"dava-bot/internal/convo"
	"dava-bot/internal/handlers"
	"dava-bot/internal/metrics"
	"dava-bot/internal/nlu"
	"dava-bot/internal/repo"
	"dava-bot/internal/wa"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repository, err := repo.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close()

	if err := repository.Migrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	if cfg.SeedDemoInventory {
		if err := repository.SeedProducts(ctx, cfg.BusinessID, demoInventory()); err != nil {
			logger.Error("inventory seed failed", "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New(cfg.MetricsNamespace, nil)

	var redis *cache.Redis
	redis, err = cache.New(ctx, cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TLS:      cfg.RedisTLS,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without distributed locks and cache", "error", err)
		redis = nil
	} else {
		defer redis.Close()
	}

	inventory := cache.NewInventoryCache(repository, redis, cfg.InventoryCacheTTL)

	var fallback convo.FallbackClassifier
	if cfg.NLUEnabled() {
		fallback = nlu.New(logger, m, nlu.Config{
			APIKeys:  cfg.GeminiAPIKeys,
			Model:    cfg.GeminiModel,
			Timeout:  cfg.GeminiTimeout,
			Cooldown: cfg.GeminiCooldown,
		})
	} else {
		logger.Info("no gemini keys configured, running rules-only")
	}

	var locker convo.DistributedLocker
	if redis != nil {
		locker = redis
	}

	engine := convo.New(repository, repository, inventory, fallback, repository, locker, m, logger, convo.Config{
		BusinessID:      cfg.BusinessID,
		SellerName:      cfg.SellerName,
		WalkInLabel:     cfg.WalkInLabel,
		OwnerID:         cfg.OwnerJID,
		MinConfidence:   cfg.ResolverMinConfidence,
		EntityThreshold: cfg.EntityThreshold,
		NLUTimeout:      cfg.NLUTimeout,
	})

	waClient, err := wa.New(ctx, engine, logger, wa.Config{
		StorePath: cfg.WhatsAppStorePath,
		LogLevel:  cfg.WhatsAppLogLevel,
	})
	if err != nil {
		logger.Error("whatsapp client setup failed", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := waClient.Connect(ctx); err != nil {
			logger.Error("whatsapp connect failed", "error", err)
		}
	}()
	defer waClient.Disconnect()

	api := handlers.New(repository, engine, waClient, m, logger, cfg.BusinessID)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.AppEnv == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func demoInventory() []convo.Product {
	return []convo.Product{
		{Name: "Dolo 650", UnitPrice: 30, Stock: 120, Disease: "fever"},
		{Name: "Crocin Advance", UnitPrice: 25, Stock: 80, Disease: "fever"},
		{Name: "Combiflam", UnitPrice: 35, Stock: 60, Disease: "pain"},
		{Name: "Cetrizine", UnitPrice: 15, Stock: 200, Disease: "allergy"},
		{Name: "Pantoprazole 40", UnitPrice: 55, Stock: 45, RequiresPrescription: true, Disease: "acidity"},
		{Name: "Azithromycin 500", UnitPrice: 110, Stock: 30, RequiresPrescription: true, Disease: "infection"},
		{Name: "ORS Sachet", UnitPrice: 20, Stock: 150, Disease: "dehydration"},
		{Name: "Benadryl Syrup", UnitPrice: 95, Stock: 0, Disease: "cough"},
	}
}
